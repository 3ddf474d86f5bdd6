package cii_test

import (
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/model"
)

var fixedNow = time.Date(2023, 10, 27, 9, 30, 0, 0, time.UTC)

func sampleDraft() *model.Draft {
	return &model.Draft{
		Number: "FV-2023-001",
		Date:   model.NewDate(2023, 10, 27),
		Seller: model.Party{
			Name:    "My Company",
			Address: model.Address{Street: "123 Business Rd", ZipCode: "75001", City: "Paris", CountryCode: "FR"},
			VATID:   "FR123456789",
			SIRET:   "12345678900011",
			Email:   "billing@mycompany.test",
		},
		Buyer: model.Party{
			Name:    "Client Corp",
			Address: model.Address{Street: "456 Client St", ZipCode: "69002", City: "Lyon", CountryCode: "FR"},
			VATID:   "FR987654321",
		},
		Items: []model.LineItem{
			{Description: "Consulting", Quantity: decimal.NewFromInt(5), UnitPrice: decimal.RequireFromString("100.0"), VATRate: decimal.RequireFromString("20.0")},
			{Description: "Hosting", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.RequireFromString("50.0"), VATRate: decimal.RequireFromString("20.0")},
		},
		Payment:    &model.Payment{IBAN: "FR7630006000011234567890189"},
		References: &model.References{BuyerReference: "BR-1", OrderReference: "PO-42"},
	}
}

func synthesize(t *testing.T, d *model.Draft, now time.Time) string {
	t.Helper()
	s := cii.NewSynthesizer(clockwork.NewFakeClockAt(now))
	xml, err := s.Synthesize(d, finance.Aggregate(d.Items))
	require.NoError(t, err)
	return xml
}

func TestSynthesize_Validates(t *testing.T) {
	xml := synthesize(t, sampleDraft(), fixedNow)

	result := cii.Validate(xml)
	assert.True(t, result.Valid(), "reason: %s", result.Reason)
	assert.NoError(t, result.Err())
}

func TestSynthesize_MinimalDraftValidates(t *testing.T) {
	d := sampleDraft()
	d.Payment = nil
	d.References = nil
	d.Seller.VATID, d.Seller.SIRET, d.Seller.Email = "", "", ""
	d.Buyer.VATID = ""
	d.Items = d.Items[:1]

	result := cii.Validate(synthesize(t, d, fixedNow))
	assert.True(t, result.Valid(), "reason: %s", result.Reason)
}

func TestSynthesize_Content(t *testing.T) {
	xml := synthesize(t, sampleDraft(), fixedNow)

	expected := []string{
		`xmlns:rsm="` + cii.NamespaceRSM + `"`,
		`<ram:ID>` + cii.GuidelineBasic + `</ram:ID>`,
		`<ram:ID>FV-2023-001</ram:ID>`,
		`<ram:TypeCode>380</ram:TypeCode>`,
		`<udt:DateTimeString format="102">20231027</udt:DateTimeString>`,
		`<ram:Content>Generated 2023-10-27T09:30:00Z</ram:Content>`,
		`<ram:BilledQuantity unitCode="C62">5</ram:BilledQuantity>`,
		`<ram:LineTotalAmount>500.00</ram:LineTotalAmount>`,
		`<ram:ID schemeID="0002">12345678900011</ram:ID>`,
		`<ram:URIID schemeID="EM">billing@mycompany.test</ram:URIID>`,
		`<ram:ID schemeID="VA">FR123456789</ram:ID>`,
		`<ram:BuyerReference>BR-1</ram:BuyerReference>`,
		`<ram:IssuerAssignedID>PO-42</ram:IssuerAssignedID>`,
		`<ram:IBANID>FR7630006000011234567890189</ram:IBANID>`,
		`<ram:InvoiceCurrencyCode>EUR</ram:InvoiceCurrencyCode>`,
		`<ram:CalculatedAmount>110.00</ram:CalculatedAmount>`,
		`<ram:BasisAmount>550.00</ram:BasisAmount>`,
		`<ram:RateApplicablePercent>20.00</ram:RateApplicablePercent>`,
		`<ram:TaxBasisTotalAmount>550.00</ram:TaxBasisTotalAmount>`,
		`<ram:TaxTotalAmount currencyID="EUR">110.00</ram:TaxTotalAmount>`,
		`<ram:GrandTotalAmount>660.00</ram:GrandTotalAmount>`,
		`<ram:DuePayableAmount>660.00</ram:DuePayableAmount>`,
	}
	for _, e := range expected {
		assert.Contains(t, xml, e)
	}

	// one header tax entry for the shared rate, one per line
	assert.Equal(t, 1, strings.Count(xml, "<ram:CalculatedAmount>"))
	assert.Equal(t, 2, strings.Count(xml, "<ram:IncludedSupplyChainTradeLineItem>"))
}

func TestSynthesize_ZeroRateCategory(t *testing.T) {
	d := sampleDraft()
	d.Items = append(d.Items, model.LineItem{
		Description: "Books", Quantity: decimal.NewFromInt(1), UnitPrice: decimal.NewFromInt(10), VATRate: decimal.Zero,
	})

	xml := synthesize(t, d, fixedNow)
	assert.Contains(t, xml, "<ram:CategoryCode>Z</ram:CategoryCode>")
	assert.Contains(t, xml, "<ram:CategoryCode>S</ram:CategoryCode>")
	assert.Equal(t, 2, strings.Count(xml, "<ram:CalculatedAmount>"))
}

func TestSynthesize_DeterministicExceptTimestamp(t *testing.T) {
	a := synthesize(t, sampleDraft(), fixedNow)
	b := synthesize(t, sampleDraft(), fixedNow.Add(time.Hour))

	assert.NotEqual(t, a, b)
	assert.Equal(t, stripGenerated(a), stripGenerated(b))
}

func stripGenerated(xml string) string {
	var out []string
	for _, line := range strings.Split(xml, "\n") {
		if strings.Contains(line, cii.GeneratedNotePrefix) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

func BenchmarkSynthesize(b *testing.B) {
	d := sampleDraft()
	totals := finance.Aggregate(d.Items)
	s := cii.NewSynthesizer(clockwork.NewFakeClockAt(fixedNow))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.Synthesize(d, totals); err != nil {
			b.Fatal(err)
		}
	}
}
