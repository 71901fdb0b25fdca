package nativert

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoad_MissingLibrary(t *testing.T) {
	_, err := Load("/nonexistent/path/to/plugin.so", nil)
	require.Error(t, err)
}
