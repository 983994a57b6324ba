package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/protocol"
)

var findCmd = &cobra.Command{
	Use:   "find <tag>",
	Short: "Select and focus every object carrying a tag",
	Long: `Select every object carrying the tag in the canvas document and focus it.
The matching objects are also printed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		ctx := commandContext(c)
		rt, err := openRuntime(ctx, currentConfig(), runtimeOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		replies, err := rt.ctrl.Handle(ctx, protocol.FindByTag{Tag: args[0]})
		if err != nil {
			return err
		}
		if err := replyError(replies); err != nil {
			return err
		}

		out := c.OutOrStdout()
		for _, o := range mutate.FindByTag(rt.ctrl.State().Index, args[0]) {
			_, _ = fmt.Fprintf(out, "%s\t%s\t%s\n", o.ID, o.Kind, o.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(findCmd)
}
