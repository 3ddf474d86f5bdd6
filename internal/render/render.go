// Package render produces the human-readable PDF side of an invoice.
//
// Layout of the A4 invoice page:
//
//	┌─────────────────────────────────────────────────────────────┐
//	│  HEADER: seller name + VAT   │  invoice number + date       │
//	│  ─────────────────────────────────────────────────────────  │
//	│  SELLER / BUYER blocks                                      │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TABLE: Qty | Description | Unit price | VAT% | Line total  │
//	│  ─────────────────────────────────────────────────────────  │
//	│  TOTALS: basis / VAT per rate / grand total                 │
//	│  PAYMENT + references                                       │
//	└─────────────────────────────────────────────────────────────┘
package render

import (
	"context"
	"fmt"

	maroto "github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/line"
	"github.com/johnfercher/maroto/v2/pkg/components/row"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/consts/pagesize"
	"github.com/johnfercher/maroto/v2/pkg/core"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"

	money "github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/model"
)

// Renderer turns invoice data into PDF bytes
type Renderer interface {
	// RenderInvoice lays out a draft and its totals
	RenderInvoice(ctx context.Context, d *model.Draft, totals finance.Totals) ([]byte, error)
	// RenderPlaceholder lays out the metadata of an XML-only upload
	RenderPlaceholder(ctx context.Context, md model.Metadata) ([]byte, error)
}

var (
	colorPrimary = &props.Color{Red: 0, Green: 70, Blue: 127}
	colorGray    = &props.Color{Red: 100, Green: 100, Blue: 100}
)

// MarotoRenderer implements Renderer with maroto v2
type MarotoRenderer struct{}

// NewMarotoRenderer creates the renderer
func NewMarotoRenderer() *MarotoRenderer { return &MarotoRenderer{} }

func newDocument(title, author string) core.Maroto {
	cfg := config.NewBuilder().
		WithPageSize(pagesize.A4).
		WithLeftMargin(10).WithRightMargin(10).
		WithTopMargin(10).WithBottomMargin(10).
		WithDefaultFont(&props.Font{Family: "helvetica", Size: 9}).
		WithTitle(title, true).
		WithAuthor(author, true).
		Build()
	return maroto.New(cfg)
}

// RenderInvoice renders the full invoice layout
func (r *MarotoRenderer) RenderInvoice(_ context.Context, d *model.Draft, totals finance.Totals) ([]byte, error) {
	currency := d.CurrencyCode()
	m := newDocument("Invoice "+d.Number, d.Seller.Name)

	m.AddRows(headerRow(d))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))
	m.AddRows(partiesRow(d.Seller, d.Buyer))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))

	m.AddRows(tableHeaderRow())
	for _, item := range d.Items {
		m.AddRows(itemRow(item))
	}

	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.3}))
	m.AddRows(totalRow("Total excl. VAT", totals.TaxBasis, currency, false))
	for _, b := range totals.VATBuckets {
		m.AddRows(totalRow(fmt.Sprintf("VAT %s%%", b.Rate.String()), b.Amount, currency, false))
	}
	m.AddRows(totalRow("Total incl. VAT", totals.GrandTotal, currency, true))

	if d.Payment != nil && d.Payment.IBAN != "" {
		m.AddRows(line.NewRow(3))
		m.AddRows(noteRow("Payment by credit transfer to IBAN " + d.Payment.IBAN))
	}
	if d.References != nil {
		if d.References.OrderReference != "" {
			m.AddRows(noteRow("Order reference: " + d.References.OrderReference))
		}
		if d.References.BuyerReference != "" {
			m.AddRows(noteRow("Buyer reference: " + d.References.BuyerReference))
		}
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, model.NewRenderFailure(fmt.Errorf("generate invoice document: %w", err))
	}
	return doc.GetBytes(), nil
}

// RenderPlaceholder renders a one-page summary for invoices received as XML only
func (r *MarotoRenderer) RenderPlaceholder(_ context.Context, md model.Metadata) ([]byte, error) {
	m := newDocument("Invoice "+orDefault(md.ID, "Unknown"), orDefault(md.SellerName, "facturx"))

	m.AddRows(row.New(14).Add(col.New(12).Add(
		text.New("Invoice "+orDefault(md.ID, "Unknown"), props.Text{
			Style: fontstyle.Bold, Size: 16, Color: colorPrimary, Top: 2,
		}),
	)))
	m.AddRows(line.NewRow(1, props.Line{Color: colorPrimary, Thickness: 0.5}))

	fields := [][2]string{
		{"Date", orDefault(md.Date, "N/A")},
		{"Seller", orDefault(md.SellerName, "N/A")},
		{"Seller address", orDefault(md.SellerAddress, "N/A")},
		{"Buyer", orDefault(md.BuyerName, "N/A")},
		{"Buyer address", orDefault(md.BuyerAddress, "N/A")},
		{"Total excl. VAT", money.Amount(md.TotalHT) + " " + md.Currency},
		{"VAT", money.Amount(md.TotalTax) + " " + md.Currency},
		{"Total incl. VAT", money.Amount(md.TotalTTC) + " " + md.Currency},
	}
	for _, f := range fields {
		m.AddRows(row.New(7).Add(
			col.New(4).Add(text.New(f[0], props.Text{Style: fontstyle.Bold, Size: 9, Top: 1})),
			col.New(8).Add(text.New(f[1], props.Text{Size: 9, Top: 1})),
		))
	}

	m.AddRows(line.NewRow(3))
	m.AddRows(line.NewRow(1, props.Line{Color: colorGray, Thickness: 0.3}))
	m.AddRows(noteRow("Document imported from CII XML"))

	doc, err := m.Generate()
	if err != nil {
		return nil, model.NewRenderFailure(fmt.Errorf("generate placeholder document: %w", err))
	}
	return doc.GetBytes(), nil
}

func headerRow(d *model.Draft) core.Row {
	vat := ""
	if d.Seller.VATID != "" {
		vat = "VAT: " + d.Seller.VATID
	}
	return row.New(18).Add(
		col.New(7).Add(
			text.New(d.Seller.Name, props.Text{
				Style: fontstyle.Bold, Size: 13, Color: colorPrimary, Top: 1,
			}),
			text.New(vat, props.Text{Size: 9, Top: 9, Color: colorGray}),
		),
		col.New(5).Add(
			text.New("INVOICE", props.Text{
				Style: fontstyle.Bold, Size: 8, Align: align.Right, Color: colorPrimary, Top: 1,
			}),
			text.New(d.Number, props.Text{
				Style: fontstyle.Bold, Size: 12, Align: align.Right, Top: 7,
			}),
			text.New("Date: "+d.Date.String(), props.Text{
				Size: 8, Align: align.Right, Top: 14, Color: colorGray,
			}),
		),
	)
}

func partiesRow(seller, buyer model.Party) core.Row {
	block := func(label string, p model.Party) core.Col {
		return col.New(6).Add(
			text.New(label, props.Text{Style: fontstyle.Bold, Size: 8, Color: colorPrimary, Top: 1}),
			text.New(p.Name, props.Text{Style: fontstyle.Bold, Size: 10, Top: 6}),
			text.New(p.Address.Street, props.Text{Size: 8, Top: 12}),
			text.New(fmt.Sprintf("%s %s, %s", p.Address.ZipCode, p.Address.City, p.Address.CountryCode), props.Text{Size: 8, Top: 16}),
			text.New(p.VATID, props.Text{Size: 8, Top: 20, Color: colorGray}),
		)
	}
	return row.New(26).Add(block("SELLER", seller), block("BILL TO", buyer))
}

func tableHeaderRow() core.Row {
	h := func(label string, size int, a align.Type) core.Col {
		return col.New(size).Add(text.New(label, props.Text{
			Style: fontstyle.Bold, Size: 8, Align: a, Color: colorPrimary, Top: 2, Left: 1, Right: 1,
		}))
	}
	return row.New(8).Add(
		h("Qty", 1, align.Center),
		h("Description", 5, align.Left),
		h("Unit price", 2, align.Right),
		h("VAT%", 1, align.Center),
		h("Line total", 3, align.Right),
	)
}

func itemRow(item model.LineItem) core.Row {
	return row.New(7).Add(
		col.New(1).Add(text.New(item.Quantity.String(), props.Text{Size: 8, Align: align.Center, Top: 1})),
		col.New(5).Add(text.New(item.Description, props.Text{Size: 8, Top: 1, Left: 1})),
		col.New(2).Add(text.New(money.Precise(item.UnitPrice), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
		col.New(1).Add(text.New(item.VATRate.String(), props.Text{Size: 8, Align: align.Center, Top: 1})),
		col.New(3).Add(text.New(money.Amount(item.Total()), props.Text{Size: 8, Align: align.Right, Top: 1, Right: 1})),
	)
}

func totalRow(label string, amount decimal.Decimal, currency string, bold bool) core.Row {
	style := fontstyle.Normal
	if bold {
		style = fontstyle.Bold
	}
	return row.New(6).Add(
		col.New(8),
		col.New(2).Add(text.New(label, props.Text{Style: style, Size: 8, Align: align.Right, Top: 1})),
		col.New(2).Add(text.New(money.Amount(amount)+" "+currency, props.Text{Style: style, Size: 8, Align: align.Right, Top: 1, Right: 1})),
	)
}

func noteRow(s string) core.Row {
	return row.New(6).Add(col.New(12).Add(text.New(s, props.Text{Size: 8, Top: 1, Color: colorGray})))
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
