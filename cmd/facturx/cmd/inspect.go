package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/pkg/facturxlib"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Show the metadata record of an invoice file",
	Long: `Derive the metadata record an upload of the file would produce, without
storing anything.

Examples:
  facturx inspect invoice.pdf
  facturx inspect factur-x.xml -f table`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	md, err := facturxlib.NewDefaultToolkit().Inspect(args[0], f)
	if err != nil {
		return err
	}
	if strings.EqualFold(outputFormat, "table") {
		printMetadataTable(md)
		return nil
	}
	return writeJSON(md)
}

func writeJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func printMetadataTable(md *model.Metadata) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintf(w, "ID:\t%s\n", md.ID)
	fmt.Fprintf(w, "Date:\t%s\n", md.Date)
	fmt.Fprintf(w, "Seller:\t%s\n", md.SellerName)
	if md.SellerAddress != "" {
		fmt.Fprintf(w, "Seller address:\t%s\n", md.SellerAddress)
	}
	if md.SellerVAT != "" {
		fmt.Fprintf(w, "Seller VAT:\t%s\n", md.SellerVAT)
	}
	fmt.Fprintf(w, "Buyer:\t%s\n", md.BuyerName)
	if md.BuyerAddress != "" {
		fmt.Fprintf(w, "Buyer address:\t%s\n", md.BuyerAddress)
	}
	fmt.Fprintf(w, "Total HT:\t%s %s\n", md.TotalHT.StringFixed(2), md.Currency)
	fmt.Fprintf(w, "Total tax:\t%s %s\n", md.TotalTax.StringFixed(2), md.Currency)
	fmt.Fprintf(w, "Total TTC:\t%s %s\n", md.TotalTTC.StringFixed(2), md.Currency)
	fmt.Fprintf(w, "Source:\t%s\n", md.Source)
}
