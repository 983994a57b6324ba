package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/server"
	"github.com/zjrosen/tagsync/internal/view"
)

var watchURL string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow a running server as a view",
	Long: `Connect to "tagsync serve" as a view and print every snapshot it pushes.
The connection is re-established if the server drops it.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		target, err := websocketURL(watchURL, currentConfig().Server.Addr)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(commandContext(c), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		cache := view.New()
		defer cache.Close()
		pushes := cache.Subscribe(ctx)
		client := server.NewClient(target, cache)

		go func() {
			for ev := range pushes {
				describePush(c.OutOrStdout(), cache, ev.Payload)
			}
		}()

		_, _ = fmt.Fprintf(c.ErrOrStderr(), "watching %s\n", target)
		if err := client.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	watchCmd.Flags().StringVar(&watchURL, "url", "", "server address or ws:// URL (default: server.addr)")
	rootCmd.AddCommand(watchCmd)
}

// websocketURL turns "host:port", "http://host:port" or a ws URL into the /ws endpoint.
func websocketURL(raw, fallback string) (string, error) {
	if raw == "" {
		raw = fallback
	}
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	return u.String(), nil
}

func describePush(out io.Writer, cache *view.Cache, p protocol.Push) {
	switch m := p.(type) {
	case protocol.Bootstrap:
		_, _ = fmt.Fprintf(out, "bootstrap: %d tag(s), %d object(s), %d selected\n", len(m.Registry), len(m.Objects), len(m.Selection))
	case protocol.SelectionChanged:
		_, _ = fmt.Fprintf(out, "selection: %s\n", strings.Join(m.IDs, ", "))
		for _, o := range cache.SelectedObjects() {
			_, _ = fmt.Fprintf(out, "  %s %s [%s]\n", o.ID, o.Name, strings.Join(o.Tags, ", "))
		}
	case protocol.Error:
		_, _ = fmt.Fprintf(out, "error: %s: %s\n", m.Code, m.Message)
	default:
		printSummary(out, p)
	}
}
