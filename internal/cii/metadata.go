package cii

import (
	"fmt"
	"strings"

	"github.com/beevik/etree"
	"github.com/shopspring/decimal"

	money "github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/model"
)

// Field names a metadata value read from a CII document
type Field string

// Extracted fields
const (
	FieldID            Field = "id"
	FieldDate          Field = "date"
	FieldSellerName    Field = "seller_name"
	FieldSellerStreet  Field = "seller_street"
	FieldSellerZip     Field = "seller_zip"
	FieldSellerCity    Field = "seller_city"
	FieldSellerCountry Field = "seller_country"
	FieldSellerVAT     Field = "seller_vat"
	FieldBuyerName     Field = "buyer_name"
	FieldBuyerStreet   Field = "buyer_street"
	FieldBuyerZip      Field = "buyer_zip"
	FieldBuyerCity     Field = "buyer_city"
	FieldBuyerCountry  Field = "buyer_country"
	FieldBuyerVAT      Field = "buyer_vat"
	FieldCurrency      Field = "currency"
	FieldTotalHT       Field = "total_ht"
	FieldTotalTTC      Field = "total_ttc"
	FieldTotalTax      Field = "total_tax"
)

// Chain is the ordered list of locators tried for one field. The first
// locator yielding a usable value wins.
type Chain struct {
	Field    Field
	Locators []Locator
}

func chain(field Field, exprs ...string) Chain {
	c := Chain{Field: field}
	for _, e := range exprs {
		c.Locators = append(c.Locators, MustCompile(e))
	}
	return c
}

// agreement scopes a party path under the header trade agreement first
func agreement(field Field, path string) Chain {
	return chain(field,
		"//ram:ApplicableHeaderTradeAgreement/ram:"+path,
		"//ram:"+path,
	)
}

func summation(field Field, name string) Chain {
	return chain(field,
		"//ram:ApplicableHeaderTradeSettlement/ram:SpecifiedTradeSettlementHeaderMonetarySummation/ram:"+name,
		"//ram:SpecifiedTradeSettlementHeaderMonetarySummation/ram:"+name,
		"//ram:"+name,
	)
}

// DefaultChains is the locator table used by ExtractMetadata
func DefaultChains() []Chain {
	return []Chain{
		chain(FieldID, "//rsm:ExchangedDocument/ram:ID"),
		chain(FieldDate,
			"//rsm:ExchangedDocument/ram:IssueDateTime/udt:DateTimeString",
			"//ram:IssueDateTime/udt:DateTimeString",
		),

		agreement(FieldSellerName, "SellerTradeParty/ram:Name"),
		agreement(FieldSellerStreet, "SellerTradeParty/ram:PostalTradeAddress/ram:LineOne"),
		agreement(FieldSellerZip, "SellerTradeParty/ram:PostalTradeAddress/ram:PostcodeCode"),
		agreement(FieldSellerCity, "SellerTradeParty/ram:PostalTradeAddress/ram:CityName"),
		agreement(FieldSellerCountry, "SellerTradeParty/ram:PostalTradeAddress/ram:CountryID"),
		agreement(FieldSellerVAT, "SellerTradeParty/ram:SpecifiedTaxRegistration/ram:ID"),

		agreement(FieldBuyerName, "BuyerTradeParty/ram:Name"),
		agreement(FieldBuyerStreet, "BuyerTradeParty/ram:PostalTradeAddress/ram:LineOne"),
		agreement(FieldBuyerZip, "BuyerTradeParty/ram:PostalTradeAddress/ram:PostcodeCode"),
		agreement(FieldBuyerCity, "BuyerTradeParty/ram:PostalTradeAddress/ram:CityName"),
		agreement(FieldBuyerCountry, "BuyerTradeParty/ram:PostalTradeAddress/ram:CountryID"),
		agreement(FieldBuyerVAT, "BuyerTradeParty/ram:SpecifiedTaxRegistration/ram:ID"),

		chain(FieldCurrency,
			"//ram:ApplicableHeaderTradeSettlement/ram:InvoiceCurrencyCode",
			"//ram:InvoiceCurrencyCode",
		),
		summation(FieldTotalHT, "TaxBasisTotalAmount"),
		summation(FieldTotalTTC, "GrandTotalAmount"),
		summation(FieldTotalTax, "TaxTotalAmount"),
	}
}

// Extractor derives metadata from CII documents using ordered locator chains
type Extractor struct {
	chains []Chain
}

// NewExtractor creates an extractor with the default chains
func NewExtractor() *Extractor {
	return &Extractor{chains: DefaultChains()}
}

// Prepend adds locators tried before the existing chain of a field
func (x *Extractor) Prepend(field Field, exprs ...string) error {
	locs := make([]Locator, 0, len(exprs))
	for _, e := range exprs {
		l, err := Compile(e)
		if err != nil {
			return err
		}
		locs = append(locs, l)
	}
	for i := range x.chains {
		if x.chains[i].Field == field {
			x.chains[i].Locators = append(locs, x.chains[i].Locators...)
			return nil
		}
	}
	x.chains = append(x.chains, Chain{Field: field, Locators: locs})
	return nil
}

var defaultExtractor = NewExtractor()

// ExtractMetadata derives metadata with the default chains. It never fails:
// unparseable input yields an empty record with Valid false.
func ExtractMetadata(xml string) model.ExtractedMetadata {
	return defaultExtractor.Extract(xml)
}

// Extract parses xml and derives metadata
func (x *Extractor) Extract(xml string) (md model.ExtractedMetadata) {
	defer func() {
		if r := recover(); r != nil {
			md = emptyMetadata()
		}
	}()

	doc, err := Parse(xml)
	if err != nil {
		return emptyMetadata()
	}
	return x.ExtractDocument(doc)
}

// ExtractDocument derives metadata from a parsed document.
// Monetary totals are returned unrounded.
func (x *Extractor) ExtractDocument(doc *etree.Document) model.ExtractedMetadata {
	root := doc.Root()
	ns := ResolveNamespaces(root)

	text := make(map[Field]string, len(x.chains))
	amounts := make(map[Field]decimal.Decimal, 3)
	for _, c := range x.chains {
		switch c.Field {
		case FieldTotalHT, FieldTotalTTC, FieldTotalTax:
			amounts[c.Field] = firstAmount(c, root, ns)
		case FieldDate:
			text[c.Field] = firstText(c, root, ns, NormalizeDate)
		default:
			text[c.Field] = firstText(c, root, ns, nil)
		}
	}

	currency := text[FieldCurrency]
	if currency == "" {
		currency = model.DefaultCurrency
	}

	md := model.ExtractedMetadata{
		Metadata: model.Metadata{
			ID:            text[FieldID],
			Date:          text[FieldDate],
			SellerName:    text[FieldSellerName],
			SellerAddress: FormatAddress(text[FieldSellerStreet], text[FieldSellerZip], text[FieldSellerCity], text[FieldSellerCountry]),
			SellerVAT:     text[FieldSellerVAT],
			BuyerName:     text[FieldBuyerName],
			BuyerAddress:  FormatAddress(text[FieldBuyerStreet], text[FieldBuyerZip], text[FieldBuyerCity], text[FieldBuyerCountry]),
			BuyerVAT:      text[FieldBuyerVAT],
			Currency:      currency,
			TotalHT:       amountOrZero(amounts, FieldTotalHT),
			TotalTTC:      amountOrZero(amounts, FieldTotalTTC),
			TotalTax:      amountOrZero(amounts, FieldTotalTax),
			Source:        model.SourceUpload,
		},
	}
	md.Valid = len(md.MissingFields()) == 0
	return md
}

func firstText(c Chain, root *etree.Element, ns Namespaces, normalize func(string) string) string {
	for _, l := range c.Locators {
		v, ok := l.Text(root, ns)
		if !ok {
			continue
		}
		if normalize != nil {
			v = normalize(v)
		}
		if v != "" {
			return v
		}
	}
	return ""
}

func firstAmount(c Chain, root *etree.Element, ns Namespaces) decimal.Decimal {
	for _, l := range c.Locators {
		v, ok := l.Text(root, ns)
		if !ok {
			continue
		}
		if d, ok := money.ParseAmount(v); ok {
			return d
		}
	}
	return money.Zero
}

func amountOrZero(m map[Field]decimal.Decimal, f Field) decimal.Decimal {
	if d, ok := m[f]; ok {
		return d
	}
	return money.Zero
}

func emptyMetadata() model.ExtractedMetadata {
	return model.ExtractedMetadata{
		Metadata: model.Metadata{
			TotalHT:  money.Zero,
			TotalTTC: money.Zero,
			TotalTax: money.Zero,
			Source:   model.SourceUpload,
		},
		Valid: false,
	}
}

// NormalizeDate rewrites an 8-digit YYYYMMDD string as YYYY-MM-DD.
// Anything else passes through trimmed.
func NormalizeDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) != 8 {
		return s
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return s
		}
	}
	return fmt.Sprintf("%s-%s-%s", s[:4], s[4:6], s[6:])
}

// FormatAddress joins "street, zip city, country", skipping empty parts
func FormatAddress(street, zip, city, country string) string {
	var parts []string
	if street != "" {
		parts = append(parts, street)
	}
	if zc := strings.TrimSpace(zip + " " + city); zc != "" {
		parts = append(parts, zc)
	}
	if country != "" {
		parts = append(parts, country)
	}
	return strings.Join(parts, ", ")
}
