package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"
	"strconv"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/zjrosen/tagsync/internal/log"
	"github.com/zjrosen/tagsync/internal/mutate"
	"github.com/zjrosen/tagsync/internal/protocol"
	"github.com/zjrosen/tagsync/internal/tags"
)

var tagsCmd = &cobra.Command{
	Use:   "tags",
	Short: "Manage the tag registry",
}

var tagsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List registered tags with usage counts",
	Long: `List every registered tag with its color, emoji and the number of objects
carrying it. Tags found on objects but missing from the registry are listed
with an asterisk.`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		ctx := commandContext(c)
		rt, err := openRuntime(ctx, currentConfig(), runtimeOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		writeTagTable(c.OutOrStdout(), rt.ctrl.State())
		return nil
	},
}

var (
	createColor string
	createEmoji string
)

var tagsCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Register a new tag",
	Example: `  tagsync tags create "Persona: Admin" --color "#ff0000"
  tagsync tags create urgent --emoji 🔥`,
	Args: cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		meta := tags.Meta{Color: createColor, Emoji: createEmoji}
		if meta.EmojiTooLong() {
			_, _ = fmt.Fprintf(c.ErrOrStderr(), "warning: emoji %q is longer than %d characters\n", meta.Emoji, tags.MaxEmojiClusters)
		}
		return runMutation(c, protocol.CreateTag{Name: args[0], Color: createColor, Emoji: createEmoji})
	},
}

var tagsDeleteCmd = &cobra.Command{
	Use:     "delete <name>",
	Aliases: []string{"rm"},
	Short:   "Delete a tag and strip it from every object",
	Args:    cobra.ExactArgs(1),
	RunE: func(c *cobra.Command, args []string) error {
		return runMutation(c, protocol.DeleteTag{Name: args[0]})
	},
}

var tagsRenameCmd = &cobra.Command{
	Use:   "rename <from> <to>",
	Short: "Rename a tag on the registry and every object",
	Long: `Rename a tag. If the new name is already registered, its color and emoji are
replaced by those of the renamed tag.`,
	Args: cobra.ExactArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		return runMutation(c, protocol.RenameTag{From: args[0], To: args[1]})
	},
}

var tagsMergeCmd = &cobra.Command{
	Use:   "merge <into> <from>...",
	Short: "Fold tags into one",
	Long: `Merge one or more tags into a target tag. Objects holding any source tag end up
with the target instead. The target keeps its own color and emoji and adopts a
source's only where it has none.`,
	Example: `  tagsync tags merge triage urgent bug`,
	Args:    cobra.MinimumNArgs(2),
	RunE: func(c *cobra.Command, args []string) error {
		return runMutation(c, protocol.MergeTags{Into: args[0], From: args[1:]})
	},
}

func init() {
	tagsCreateCmd.Flags().StringVar(&createColor, "color", "", "display color, e.g. #ff0000")
	tagsCreateCmd.Flags().StringVar(&createEmoji, "emoji", "", "display emoji (at most 2 characters)")

	for _, c := range []*cobra.Command{tagsCreateCmd, tagsDeleteCmd, tagsRenameCmd, tagsMergeCmd} {
		addDryRunFlag(c)
	}
	tagsCmd.AddCommand(tagsListCmd, tagsCreateCmd, tagsDeleteCmd, tagsRenameCmd, tagsMergeCmd)
	rootCmd.AddCommand(tagsCmd)
}

type tagRow struct {
	name, color, emoji, used string
}

// writeTagTable prints the registry as aligned columns. Widths are measured in
// terminal cells so emoji and wide characters line up.
func writeTagTable(out io.Writer, s mutate.State) {
	usage := mutate.TagUsage(s.Index)
	rows := []tagRow{{"NAME", "COLOR", "EMOJI", "USED"}}
	for _, t := range s.Registry.Tags() {
		rows = append(rows, tagRow{t.Name, t.Color, t.Emoji, strconv.Itoa(usage[t.Name])})
	}
	orphans := mutate.OrphanTags(s)
	for _, name := range orphans {
		rows = append(rows, tagRow{name + "*", "", "", strconv.Itoa(usage[name])})
	}

	widths := [3]int{}
	for _, r := range rows {
		for i, cell := range []string{r.name, r.color, r.emoji} {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}
	for _, r := range rows {
		_, _ = fmt.Fprintf(out, "%s  %s  %s  %s\n",
			runewidth.FillRight(r.name, widths[0]),
			runewidth.FillRight(r.color, widths[1]),
			runewidth.FillRight(r.emoji, widths[2]),
			r.used)
	}
	if len(orphans) > 0 {
		_, _ = fmt.Fprintln(out, "* used on objects but not registered")
	}
	log.Debug(log.CatRegistry, "listed tags", "registered", len(s.Registry), "orphans", len(orphans))
}

func commandContext(c *cobra.Command) context.Context {
	if ctx := c.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// splitTags accepts repeated and comma-separated values.
func splitTags(values []string) []string {
	var out []string
	for _, v := range values {
		out = append(out, splitComma(v)...)
	}
	return slices.Compact(out)
}
