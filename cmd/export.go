package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zjrosen/tagsync/internal/protocol"
)

var (
	exportOutput string
	exportHeader string
	exportScope  string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export tagged objects as CSV",
	Long: `Export objects and their tags as CSV. Every field is quoted and tags are
joined with "|". The CSV is also placed on the document clipboard.`,
	Example: `  tagsync export -o tags.csv
  tagsync export --header item --scope all`,
	Args: cobra.NoArgs,
	RunE: func(c *cobra.Command, _ []string) error {
		ctx := commandContext(c)
		rt, err := openRuntime(ctx, currentConfig(), runtimeOptions{})
		if err != nil {
			return err
		}
		defer func() { _ = rt.Close(ctx) }()

		replies, err := rt.ctrl.Handle(ctx, protocol.Export{Header: exportHeader, Scope: exportScope})
		if err != nil {
			return err
		}
		if err := replyError(replies); err != nil {
			return err
		}
		for _, p := range replies {
			ready, ok := p.(protocol.ExportReady)
			if !ok {
				continue
			}
			if exportOutput == "" {
				_, _ = fmt.Fprintln(c.OutOrStdout(), ready.CSV)
				return nil
			}
			if err := os.WriteFile(exportOutput, []byte(ready.CSV), 0o600); err != nil {
				return fmt.Errorf("writing export: %w", err)
			}
			_, _ = fmt.Fprintf(c.ErrOrStderr(), "exported %d row(s) to %s\n", ready.Rows, exportOutput)
			return nil
		}
		return fmt.Errorf("export produced no output")
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "", "write to file instead of stdout")
	exportCmd.Flags().StringVar(&exportHeader, "header", "", "node or item (overrides export.header)")
	exportCmd.Flags().StringVar(&exportScope, "scope", "", "tagged or all (overrides export.scope)")
	rootCmd.AddCommand(exportCmd)
}
