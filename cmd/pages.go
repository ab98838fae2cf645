package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"example.com/pdfmerge/internal/merge"
	"example.com/pdfmerge/internal/pdf"
)

var pagesCmd = &cobra.Command{
	Use:   "pages FILE...",
	Short: "Print the page count of PDF files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		engine := merge.New(pdf.NewBackend(false), slog.Default())
		w := cmd.OutOrStdout()
		for _, p := range args {
			data, err := os.ReadFile(p)
			if err != nil {
				return err
			}
			n, err := engine.Inspect(data)
			if err != nil {
				return fmt.Errorf("%s: %w", p, err)
			}
			fmt.Fprintf(w, "%s\t%d\n", p, n)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pagesCmd)
}
