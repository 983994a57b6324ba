package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var selectionCmd = &cobra.Command{
	Use:   "selection",
	Short: "Show the selected objects and their tags",
	Args:  cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		ctx := commandContext(c)
		rt, err := openRuntime(ctx, currentConfig(), runtimeOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		boot := rt.ctrl.Bootstrap("")
		index := rt.ctrl.State().Index
		out := c.OutOrStdout()
		if len(boot.Selection) == 0 {
			_, _ = fmt.Fprintln(out, "nothing selected")
			return nil
		}
		for _, id := range boot.Selection {
			tagNames := "-"
			if o, ok := index[id]; ok && len(o.Tags) > 0 {
				tagNames = strings.Join(o.Tags, ", ")
			}
			_, _ = fmt.Fprintf(out, "%s\t%s\n", id, tagNames)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(selectionCmd)
}
