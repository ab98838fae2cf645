package cmd

import (
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"example.com/pdfmerge/internal/api"
	"example.com/pdfmerge/internal/merge"
	"example.com/pdfmerge/internal/pdf"
)

var mergeCmd = &cobra.Command{
	Use:   "merge -o OUT.pdf [--spec SPEC.json] FILE...",
	Short: "Merge local PDF files",
	Long: `Merge local PDF files into one document.

Without --spec every page of every FILE is copied in argument order. With
--spec the pages are taken from a JSON specification whose fileNumber fields
are 0-based indexes into the FILE arguments:

  {"fileSpecifications": [
    {"fileNumber": 1, "pageNumbers": [1, 2]},
    {"fileNumber": 0, "pageNumbers": [3]}
  ]}`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func init() {
	f := mergeCmd.Flags()
	f.StringP("output", "o", "", "output file")
	f.String("spec", "", "page selection specification (JSON)")
	f.Bool("strict", false, "use strict PDF validation")
	mergeCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(mergeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	out, _ := cmd.Flags().GetString("output")
	specPath, _ := cmd.Flags().GetString("spec")
	strict, _ := cmd.Flags().GetBool("strict")

	files, err := readInputs(args)
	if err != nil {
		return err
	}

	engine := merge.New(pdf.NewBackend(strict), slog.Default())

	var merged []byte
	if specPath == "" {
		refs := make([]merge.SourceRef, len(files))
		for i := range files {
			refs[i] = merge.IndexRef(i)
		}
		merged, err = engine.MergeFiles(files, refs)
	} else {
		var spec api.MergeSpecification
		spec, err = api.LoadSpecification(specPath)
		if err != nil {
			return err
		}
		var plan merge.Plan
		if plan, err = spec.Plan(api.ByFileNumber); err != nil {
			return err
		}
		merged, err = engine.MergePages(files, plan)
	}
	if err != nil {
		return err
	}

	if err := writeOutput(out, merged); err != nil {
		return err
	}
	slog.Info("merged", "output", out, "sources", len(files), "bytes", len(merged))
	return nil
}

func readInputs(paths []string) (merge.UploadResolver, error) {
	files := make(merge.UploadResolver, len(paths))
	for i, p := range paths {
		b, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		files[i] = b
	}
	return files, nil
}

// writeOutput replaces path atomically so a failed run never leaves a
// partial document behind.
func writeOutput(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pdfmerge-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
