package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/pkg/facturxlib"
)

var (
	outputFile string
	xmlFile    string
	timeout    time.Duration
)

var generateCmd = &cobra.Command{
	Use:   "generate <draft.json>",
	Short: "Render a JSON draft into a Factur-X PDF",
	Long: `Render an invoice draft into a PDF/A-3 document with its CII XML embedded.

Nothing is stored; the PDF is written to --output and the XML, when asked,
to --xml.

Examples:
  facturx generate draft.json -o invoice.pdf
  facturx generate draft.json -o invoice.pdf --xml factur-x.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(generateCmd)

	generateCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output PDF file (default: <invoice id>.pdf)")
	generateCmd.Flags().StringVar(&xmlFile, "xml", "", "Also write the CII XML to this file")
	generateCmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Rendering timeout")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	tk := facturxlib.NewToolkit(facturxlib.Options{AllowPlainFallback: cfg.FacturX.AllowPlainFallback})
	bundle, err := tk.GenerateJSON(ctx, f)
	if err != nil {
		return err
	}

	out := outputFile
	if out == "" {
		out = bundle.ID + ".pdf"
	}
	if err := os.WriteFile(out, bundle.PDF, 0o644); err != nil {
		return fmt.Errorf("write pdf: %w", err)
	}
	printVerbose("Wrote %s (%d bytes)\n", out, len(bundle.PDF))

	if xmlFile != "" {
		if err := os.WriteFile(xmlFile, []byte(bundle.XML), 0o644); err != nil {
			return fmt.Errorf("write xml: %w", err)
		}
		printVerbose("Wrote %s\n", xmlFile)
	}

	if strings.EqualFold(outputFormat, "table") {
		printMetadataTable(&bundle.Metadata)
		return nil
	}
	return writeJSON(bundle.Metadata)
}
