package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zjrosen/tagsync/internal/config"
	"github.com/zjrosen/tagsync/internal/export"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/pubsub"
)

// addDryRunFlag registers --dry-run on a mutation command.
func addDryRunFlag(c *cobra.Command) {
	c.Flags().Bool("dry-run", false, "show the export diff without saving")
}

// runMutation opens the runtime and applies intent, printing a summary.
func runMutation(c *cobra.Command, intent protocol.Intent) error {
	return runMutationWith(c, func(context.Context, *runtime) (protocol.Intent, error) {
		return intent, nil
	})
}

// runMutationWith builds the intent from the loaded runtime before applying it.
func runMutationWith(c *cobra.Command, build func(context.Context, *runtime) (protocol.Intent, error)) error {
	dryRun, _ := c.Flags().GetBool("dry-run")
	ctx := commandContext(c)

	rt, err := openRuntime(ctx, currentConfig(), runtimeOptions{DryRun: dryRun})
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close(ctx) }()

	intent, err := build(ctx, rt)
	if err != nil {
		return err
	}
	return applyIntent(ctx, c.OutOrStdout(), rt, intent, dryRun)
}

// applyIntent handles one intent and reports the snapshot it produced. With dryRun the
// controller does not persist and the change is shown as a diff of full exports.
func applyIntent(ctx context.Context, out io.Writer, rt *runtime, intent protocol.Intent, dryRun bool) error {
	full := export.Options{Header: export.ParseHeader(rt.cfg.Export.Header), Scope: export.AllObjects}
	before := export.CSV(rt.ctrl.State().Index, full).CSV

	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	_, updates := rt.ctrl.Connect(subCtx)

	replies, err := rt.ctrl.Handle(ctx, intent)
	if err != nil {
		return err
	}
	if err := replyError(replies); err != nil {
		return err
	}

	if p, ok := nextPush(updates); ok {
		printSummary(out, p)
	}
	if dryRun {
		after := export.CSV(rt.ctrl.State().Index, full).CSV
		if diff := export.Diff(before, after); diff != "" {
			_, _ = fmt.Fprint(out, diff)
		} else {
			_, _ = fmt.Fprintln(out, "no changes")
		}
		_, _ = fmt.Fprintln(out, "dry run: nothing saved")
	}
	return nil
}

// nextPush returns the snapshot already queued by a handled intent, if any.
func nextPush(updates <-chan pubsub.Event[protocol.Push]) (protocol.Push, bool) {
	select {
	case ev, ok := <-updates:
		if !ok {
			return nil, false
		}
		return ev.Payload, true
	default:
		return nil, false
	}
}

func printSummary(out io.Writer, p protocol.Push) {
	switch m := p.(type) {
	case protocol.RegistryUpdated:
		_, _ = fmt.Fprintf(out, "%s: %d object(s) changed, %d tag(s) registered\n", m.Cause, m.Affected, len(m.Registry))
	case protocol.ObjectUpdated:
		_, _ = fmt.Fprintf(out, "%s: %d object(s) changed\n", m.Cause, m.Affected)
		for _, id := range m.Skipped {
			_, _ = fmt.Fprintf(out, "skipped unknown object %s\n", id)
		}
	}
}

// replyError converts an error reply into a Go error.
func replyError(replies []protocol.Push) error {
	for _, p := range replies {
		if e, ok := p.(protocol.Error); ok {
			return fmt.Errorf("%s: %s", e.Code, e.Message)
		}
	}
	return nil
}

// currentConfig re-reads flag overrides bound after initConfig ran.
func currentConfig() config.Config {
	c := cfg
	if p := viper.GetString("document.path"); p != "" {
		c.Document.Path = p
	}
	if d := viper.GetString("store.driver"); d != "" {
		c.Store.Driver = d
	}
	return c
}
