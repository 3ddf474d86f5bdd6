package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/processor"
	"github.com/rezonia/facturx/pkg/facturxlib"
)

var validateCmd = &cobra.Command{
	Use:   "validate [files...]",
	Short: "Check the structure of invoice files",
	Long: `Check one or more PDF or XML invoice files.

PDFs are checked through their embedded XML. Checks performed:
  - Well-formed XML with a CrossIndustryInvoice root
  - Required sections present and non-empty
  - Invoice id, seller name and buyer name present

Examples:
  facturx validate invoice.xml
  facturx validate invoices/ -f table`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	files, err := collectFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no files found to validate")
	}
	printVerbose("Found %d files to validate\n", len(files))

	reports := facturxlib.NewDefaultToolkit().CheckFiles(cmd.Context(), files)
	allValid := true
	for _, r := range reports {
		if !r.Valid {
			allValid = false
		}
	}

	if strings.EqualFold(outputFormat, "table") {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "FILE\tFORMAT\tSTATUS\tREASON")
		for _, r := range reports {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.File, r.Format, r.Status, r.Reason)
		}
		if err := w.Flush(); err != nil {
			return err
		}
	} else if err := writeJSON(reports); err != nil {
		return err
	}

	if !allValid {
		return fmt.Errorf("validation failed for some files")
	}
	return nil
}

// collectFiles expands globs and walks directories for PDF and XML files
func collectFiles(args []string) ([]string, error) {
	var files []string

	for _, arg := range args {
		matches, err := filepath.Glob(arg)
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %s: %w", arg, err)
		}
		if len(matches) == 0 {
			matches = []string{arg}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("file not found: %s", match)
			}
			if !info.IsDir() {
				files = append(files, match)
				continue
			}
			err = filepath.WalkDir(match, func(path string, d os.DirEntry, err error) error {
				if err != nil {
					return err
				}
				if !d.IsDir() && processor.DeclaredFormat(path) != processor.FormatUnknown {
					files = append(files, path)
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		}
	}

	return files, nil
}
