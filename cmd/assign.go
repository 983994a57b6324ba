package cmd

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tagsync/internal/protocol"
)

var assignTags []string

var assignCmd = &cobra.Command{
	Use:   "assign --tag <tag> [object-id...]",
	Short: "Add tags to objects",
	Long: `Add tags to objects. Without object ids the current canvas selection is used.
Ids that are not on the canvas are skipped and reported.`,
	Example: `  tagsync assign --tag urgent 1:2 1:3
  tagsync assign -t urgent,auth           # current selection`,
	RunE: func(c *cobra.Command, args []string) error {
		return runMutationWith(c, func(ctx context.Context, rt *runtime) (protocol.Intent, error) {
			ids, tagNames, err := assignTargets(ctx, rt, args)
			return protocol.AssignTags{ObjectIDs: ids, Tags: tagNames}, err
		})
	},
}

var unassignCmd = &cobra.Command{
	Use:     "unassign --tag <tag> [object-id...]",
	Aliases: []string{"untag"},
	Short:   "Remove tags from objects",
	Long:    `Remove tags from objects. Without object ids the current canvas selection is used.`,
	RunE: func(c *cobra.Command, args []string) error {
		return runMutationWith(c, func(ctx context.Context, rt *runtime) (protocol.Intent, error) {
			ids, tagNames, err := assignTargets(ctx, rt, args)
			return protocol.RemoveTags{ObjectIDs: ids, Tags: tagNames}, err
		})
	},
}

func init() {
	for _, c := range []*cobra.Command{assignCmd, unassignCmd} {
		c.Flags().StringSliceVarP(&assignTags, "tag", "t", nil, "tag to apply (repeatable or comma-separated)")
		_ = c.MarkFlagRequired("tag")
		addDryRunFlag(c)
		rootCmd.AddCommand(c)
	}
}

var errNoTargets = errors.New("no object ids given and nothing is selected")

// assignTargets resolves explicit ids, falling back to the document selection.
func assignTargets(ctx context.Context, rt *runtime, args []string) ([]string, []string, error) {
	tagNames := splitTags(assignTags)
	if len(tagNames) == 0 {
		return nil, nil, errors.New("at least one --tag is required")
	}
	if len(args) > 0 {
		return args, tagNames, nil
	}

	sel, err := rt.doc.Selection(ctx)
	if err != nil {
		return nil, nil, err
	}
	if len(sel) == 0 {
		return nil, nil, errNoTargets
	}
	return sel, tagNames, nil
}

func splitComma(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
