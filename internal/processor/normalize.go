package processor

import (
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/rezonia/facturx/internal/cii"
	money "github.com/rezonia/facturx/internal/decimal"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/model"
)

// Normalizer builds the persisted metadata record of a bundle.
// Totals are rounded to two decimals and created_at is stamped from the clock.
type Normalizer struct {
	clock clockwork.Clock
}

// NewNormalizer creates a normalizer; a nil clock uses the real one
func NewNormalizer(clock clockwork.Clock) *Normalizer {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Normalizer{clock: clock}
}

func (n *Normalizer) now() string {
	return n.clock.Now().UTC().Format(time.RFC3339)
}

// FromDraft describes a generated invoice
func (n *Normalizer) FromDraft(id string, d *model.Draft, totals finance.Totals) model.Metadata {
	address := func(a model.Address) string {
		return cii.FormatAddress(a.Street, a.ZipCode, a.City, a.CountryCode)
	}
	return model.Metadata{
		ID:            id,
		Date:          d.Date.String(),
		SellerName:    d.Seller.Name,
		SellerAddress: address(d.Seller.Address),
		SellerVAT:     d.Seller.VATID,
		BuyerName:     d.Buyer.Name,
		BuyerAddress:  address(d.Buyer.Address),
		BuyerVAT:      d.Buyer.VATID,
		Currency:      d.CurrencyCode(),
		TotalHT:       money.Round2(totals.TaxBasis),
		TotalTTC:      money.Round2(totals.GrandTotal),
		TotalTax:      money.Round2(totals.TotalVAT),
		CreatedAt:     n.now(),
		Source:        model.SourceGenerated,
	}
}

// FromExtracted describes an uploaded invoice under its sanitized id
func (n *Normalizer) FromExtracted(id string, em model.ExtractedMetadata) model.Metadata {
	md := em.Metadata
	md.ID = id
	if md.Currency == "" {
		md.Currency = model.DefaultCurrency
	}
	md.TotalHT = money.Round2(md.TotalHT)
	md.TotalTTC = money.Round2(md.TotalTTC)
	md.TotalTax = money.Round2(md.TotalTax)
	md.CreatedAt = n.now()
	md.Source = model.SourceUpload
	return md
}
