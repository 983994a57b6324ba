package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller and serve views",
	Long: `Run the controller over the configured document and store, and serve views.

Views connect over a websocket at /ws, or post intents to /intents and follow
snapshots at /events. The export is available at /export.csv. The document is
reloaded when it changes on disk, and selection changes are pushed to every view.

Example:
  tagsync serve                        # Listen on server.addr (127.0.0.1:7777)
  tagsync serve --addr 127.0.0.1:0     # Pick a free port`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Address to listen on (overrides server.addr)")
}

func runServe(c *cobra.Command, _ []string) error {
	conf := currentConfig()
	ctx, cancel := context.WithCancel(commandContext(c))
	defer cancel()

	rt, err := openRuntime(ctx, conf, runtimeOptions{Watch: true})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(context.Background()) }()

	addr := serveAddr
	if addr == "" {
		addr = conf.Server.Addr
	}

	srv, err := server.NewServer(server.ServerConfig{
		Addr:              addr,
		Controller:        rt.ctrl,
		Flags:             rt.ctrl.Flags(),
		Tracer:            rt.ctrl.Tracer(),
		ReadHeaderTimeout: conf.Server.ReadHeaderTimeout,
		WriteTimeout:      conf.Server.WriteTimeout,
		Heartbeat:         conf.Server.Heartbeat,
	})
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Start()
	}()
	go func() {
		if err := rt.ctrl.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("selection stream: %w", err)
		}
	}()

	out := c.OutOrStdout()
	_, _ = fmt.Fprintf(out, "tagsync serving %s on http://%s\n", conf.Document.Path, srv.Addr())
	_, _ = fmt.Fprintln(out, "Press Ctrl+C to stop")

	// Wait for shutdown signal or error
	select {
	case sig := <-sigCh:
		_, _ = fmt.Fprintf(out, "\nReceived %s, shutting down...\n", sig)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-ctx.Done():
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Stop(shutdownCtx); err != nil {
		log.Error(log.CatServer, "Error stopping server", "error", err)
	}
	cancel()

	_, _ = fmt.Fprintln(out, "Stopped")
	return nil
}
