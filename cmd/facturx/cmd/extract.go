package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/pkg/facturxlib"
)

var extractCmd = &cobra.Command{
	Use:   "extract <file.pdf>",
	Short: "Print the invoice XML embedded in a PDF",
	Long: `Print the CII XML attached to a Factur-X PDF.

Exits non-zero with EXTRACTION_FAILURE when the PDF carries no invoice XML.

Examples:
  facturx extract invoice.pdf > factur-x.xml`,
	Args: cobra.ExactArgs(1),
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	xml, err := facturxlib.NewDefaultToolkit().Extract(f)
	if err != nil {
		return err
	}
	_, err = fmt.Fprint(cmd.OutOrStdout(), xml)
	return err
}
