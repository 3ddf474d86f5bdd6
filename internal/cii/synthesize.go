package cii

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/beevik/etree"
	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"

	money "github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/model"
)

// Document constants for the Basic profile
const (
	GuidelineBasic      = "urn:cen.eu:en16931:2017#compliant#urn:factur-x.eu:1p0:basic"
	TypeCodeInvoice     = "380"
	DateFormatCompact   = "102"
	UnitCodeOne         = "C62"
	TaxTypeVAT          = "VAT"
	CategoryStandard    = "S"
	CategoryZeroRated   = "Z"
	SchemeSIRET         = "0002"
	SchemeVAT           = "VA"
	SchemeEmail         = "EM"
	GeneratedNotePrefix = "Generated "

	compactDateLayout = "20060102"
)

// Synthesizer turns a draft and its totals into a CII document.
// The only non-deterministic content is the generation note, taken from the clock.
type Synthesizer struct {
	clock clockwork.Clock
}

// NewSynthesizer creates a synthesizer. A nil clock uses the real clock.
func NewSynthesizer(clock clockwork.Clock) *Synthesizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Synthesizer{clock: clock}
}

// Synthesize renders the CII XML text for a draft
func (s *Synthesizer) Synthesize(d *model.Draft, totals finance.Totals) (string, error) {
	doc := s.Build(d, totals)
	xml, err := doc.WriteToString()
	if err != nil {
		return "", fmt.Errorf("failed to serialize CII document: %w", err)
	}
	return xml, nil
}

// Build returns the CII document tree for a draft
func (s *Synthesizer) Build(d *model.Draft, totals finance.Totals) *etree.Document {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("rsm:CrossIndustryInvoice")
	root.CreateAttr("xmlns:rsm", NamespaceRSM)
	root.CreateAttr("xmlns:ram", NamespaceRAM)
	root.CreateAttr("xmlns:udt", NamespaceUDT)
	root.CreateAttr("xmlns:qdt", NamespaceQDT)

	context := root.CreateElement("rsm:ExchangedDocumentContext")
	textChild(context.CreateElement("ram:GuidelineSpecifiedDocumentContextParameter"), "ram:ID", GuidelineBasic)

	header := root.CreateElement("rsm:ExchangedDocument")
	textChild(header, "ram:ID", strings.TrimSpace(d.Number))
	textChild(header, "ram:TypeCode", TypeCodeInvoice)
	issue := header.CreateElement("ram:IssueDateTime")
	dateString(issue, d.Date.Time)
	note := header.CreateElement("ram:IncludedNote")
	textChild(note, "ram:Content", GeneratedNotePrefix+s.clock.Now().UTC().Format(time.RFC3339))

	tx := root.CreateElement("rsm:SupplyChainTradeTransaction")
	for i, item := range d.Items {
		addLine(tx, i+1, item)
	}
	addAgreement(tx, d)
	tx.CreateElement("ram:ApplicableHeaderTradeDelivery")
	addSettlement(tx, d, totals)

	doc.Indent(2)
	return doc
}

func addLine(tx *etree.Element, n int, item model.LineItem) {
	line := tx.CreateElement("ram:IncludedSupplyChainTradeLineItem")
	textChild(line.CreateElement("ram:AssociatedDocumentLineDocument"), "ram:LineID", strconv.Itoa(n))
	textChild(line.CreateElement("ram:SpecifiedTradeProduct"), "ram:Name", item.Description)

	agreement := line.CreateElement("ram:SpecifiedLineTradeAgreement")
	textChild(agreement.CreateElement("ram:NetPriceProductTradePrice"), "ram:ChargeAmount", money.Precise(item.UnitPrice))

	qty := textChild(line.CreateElement("ram:SpecifiedLineTradeDelivery"), "ram:BilledQuantity", item.Quantity.String())
	qty.CreateAttr("unitCode", UnitCodeOne)

	settlement := line.CreateElement("ram:SpecifiedLineTradeSettlement")
	tax := settlement.CreateElement("ram:ApplicableTradeTax")
	textChild(tax, "ram:TypeCode", TaxTypeVAT)
	textChild(tax, "ram:CategoryCode", category(item.VATRate))
	textChild(tax, "ram:RateApplicablePercent", money.Precise(item.VATRate))
	sum := settlement.CreateElement("ram:SpecifiedTradeSettlementLineMonetarySummation")
	textChild(sum, "ram:LineTotalAmount", money.Amount(item.Total()))
}

func addAgreement(tx *etree.Element, d *model.Draft) {
	agreement := tx.CreateElement("ram:ApplicableHeaderTradeAgreement")
	if d.References != nil && d.References.BuyerReference != "" {
		textChild(agreement, "ram:BuyerReference", d.References.BuyerReference)
	}
	addParty(agreement.CreateElement("ram:SellerTradeParty"), d.Seller)
	addParty(agreement.CreateElement("ram:BuyerTradeParty"), d.Buyer)
	if d.References != nil && d.References.OrderReference != "" {
		textChild(agreement.CreateElement("ram:BuyerOrderReferencedDocument"), "ram:IssuerAssignedID", d.References.OrderReference)
	}
}

func addParty(party *etree.Element, p model.Party) {
	textChild(party, "ram:Name", p.Name)
	if p.SIRET != "" {
		id := textChild(party.CreateElement("ram:SpecifiedLegalOrganization"), "ram:ID", p.SIRET)
		id.CreateAttr("schemeID", SchemeSIRET)
	}

	addr := party.CreateElement("ram:PostalTradeAddress")
	textChild(addr, "ram:PostcodeCode", p.Address.ZipCode)
	textChild(addr, "ram:LineOne", p.Address.Street)
	textChild(addr, "ram:CityName", p.Address.City)
	textChild(addr, "ram:CountryID", strings.ToUpper(p.Address.CountryCode))

	if p.Email != "" {
		uri := textChild(party.CreateElement("ram:URIUniversalCommunication"), "ram:URIID", p.Email)
		uri.CreateAttr("schemeID", SchemeEmail)
	}
	if p.VATID != "" {
		vat := textChild(party.CreateElement("ram:SpecifiedTaxRegistration"), "ram:ID", p.VATID)
		vat.CreateAttr("schemeID", SchemeVAT)
	}
}

func addSettlement(tx *etree.Element, d *model.Draft, totals finance.Totals) {
	currency := d.CurrencyCode()
	settlement := tx.CreateElement("ram:ApplicableHeaderTradeSettlement")
	textChild(settlement, "ram:InvoiceCurrencyCode", currency)

	if d.Payment != nil {
		means := settlement.CreateElement("ram:SpecifiedTradeSettlementPaymentMeans")
		textChild(means, "ram:TypeCode", d.Payment.Code())
		if d.Payment.IBAN != "" {
			textChild(means.CreateElement("ram:PayeePartyCreditorFinancialAccount"), "ram:IBANID", d.Payment.IBAN)
		}
	}

	for _, b := range totals.VATBuckets {
		tax := settlement.CreateElement("ram:ApplicableTradeTax")
		textChild(tax, "ram:CalculatedAmount", money.Amount(b.Amount))
		textChild(tax, "ram:TypeCode", TaxTypeVAT)
		textChild(tax, "ram:BasisAmount", money.Amount(b.Basis))
		textChild(tax, "ram:CategoryCode", category(b.Rate))
		textChild(tax, "ram:RateApplicablePercent", money.Precise(b.Rate))
	}

	sum := settlement.CreateElement("ram:SpecifiedTradeSettlementHeaderMonetarySummation")
	textChild(sum, "ram:LineTotalAmount", money.Amount(totals.TaxBasis))
	textChild(sum, "ram:TaxBasisTotalAmount", money.Amount(totals.TaxBasis))
	taxTotal := textChild(sum, "ram:TaxTotalAmount", money.Amount(totals.TotalVAT))
	taxTotal.CreateAttr("currencyID", currency)
	textChild(sum, "ram:GrandTotalAmount", money.Amount(totals.GrandTotal))
	textChild(sum, "ram:DuePayableAmount", money.Amount(totals.GrandTotal))
}

func category(rate decimal.Decimal) string {
	if rate.IsZero() {
		return CategoryZeroRated
	}
	return CategoryStandard
}

func dateString(parent *etree.Element, t time.Time) {
	ds := textChild(parent, "udt:DateTimeString", t.Format(compactDateLayout))
	ds.CreateAttr("format", DateFormatCompact)
}

func textChild(parent *etree.Element, tag, text string) *etree.Element {
	e := parent.CreateElement(tag)
	e.SetText(text)
	return e
}
