// Package signing verifies the authenticity of plugin binaries before the
// host loads them. A plugin's library file may ship with a detached
// ed25519 signature; if the host is configured with trusted public keys,
// the signature is checked before the dynamic linker (native transport)
// or a subprocess (gRPC transport) ever touches the file.
package signing

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
)

// GenerateKeyPair generates a new ed25519 key pair for plugin signing.
func GenerateKeyPair() (ed25519.PublicKey, ed25519.PrivateKey, error) {
	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, nil, fmt.Errorf("generate key pair: %w", err)
	}
	return publicKey, privateKey, nil
}

// SignBinary writes a hex-encoded ed25519 signature of binaryPath's
// SHA-256 hash to outputSigPath.
func SignBinary(binaryPath, outputSigPath string, privateKey ed25519.PrivateKey) error {
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return fmt.Errorf("read binary: %w", err)
	}
	hash := sha256.Sum256(data)
	signature := ed25519.Sign(privateKey, hash[:])
	if err := os.WriteFile(outputSigPath, []byte(hex.EncodeToString(signature)), 0o644); err != nil {
		return fmt.Errorf("write signature: %w", err)
	}
	return nil
}

// VerifyBinary verifies binaryPath's signature file against any of
// trustedKeys, returning nil only when a matching key is found.
func VerifyBinary(binaryPath, signaturePath string, trustedKeys []ed25519.PublicKey) error {
	data, err := os.ReadFile(binaryPath)
	if err != nil {
		return fmt.Errorf("read binary: %w", err)
	}
	hash := sha256.Sum256(data)

	sigData, err := os.ReadFile(signaturePath)
	if err != nil {
		return fmt.Errorf("read signature file: %w", err)
	}
	signature, err := hex.DecodeString(string(sigData))
	if err != nil {
		return fmt.Errorf("invalid signature format: %w", err)
	}
	if len(signature) != ed25519.SignatureSize {
		return fmt.Errorf("invalid signature length: expected %d, got %d", ed25519.SignatureSize, len(signature))
	}

	for _, publicKey := range trustedKeys {
		if ed25519.Verify(publicKey, hash[:], signature) {
			return nil
		}
	}
	return fmt.Errorf("signature verification failed: no matching trusted key")
}

// DefaultSignaturePath returns the conventional signature path for a
// binary: "/path/to/plugin" -> "/path/to/plugin.sig".
func DefaultSignaturePath(binaryPath string) string {
	return binaryPath + ".sig"
}

// RequireSignatures reports whether the host must reject unsigned or
// unverifiable plugins, controlled by RUSTYBEAM_REQUIRE_SIGNATURES.
func RequireSignatures() bool {
	return os.Getenv("RUSTYBEAM_REQUIRE_SIGNATURES") == "1"
}
