package model

import (
	"github.com/shopspring/decimal"
)

// Source tags where a bundle came from
type Source string

// Bundle sources
const (
	SourceGenerated Source = "generated"
	SourceUpload    Source = "upload"
)

// Metadata is the canonical record persisted next to every bundle
type Metadata struct {
	ID            string          `json:"id"`
	Date          string          `json:"date"`
	SellerName    string          `json:"seller_name"`
	SellerAddress string          `json:"seller_address"`
	SellerVAT     string          `json:"seller_vat"`
	BuyerName     string          `json:"buyer_name"`
	BuyerAddress  string          `json:"buyer_address"`
	BuyerVAT      string          `json:"buyer_vat"`
	Currency      string          `json:"currency"`
	TotalHT       decimal.Decimal `json:"total_ht"`
	TotalTTC      decimal.Decimal `json:"total_ttc"`
	TotalTax      decimal.Decimal `json:"total_tax"`
	CreatedAt     string          `json:"created_at"`
	Source        Source          `json:"source"`
}

// ExtractedMetadata is a Metadata record read back from a CII document.
// Valid is transient and never persisted.
type ExtractedMetadata struct {
	Metadata
	Valid bool `json:"-"`
}

// MissingFields names the required fields that are empty
func (e *ExtractedMetadata) MissingFields() []string {
	var missing []string
	if e.ID == "" {
		missing = append(missing, "id")
	}
	if e.SellerName == "" {
		missing = append(missing, "seller_name")
	}
	if e.BuyerName == "" {
		missing = append(missing, "buyer_name")
	}
	return missing
}

// Bundle is the unit of persistence: one rendered PDF, its CII XML and the metadata record
type Bundle struct {
	ID       string
	PDF      []byte
	XML      string
	Metadata Metadata
}

// Representation selects which artifact of a bundle a caller wants
type Representation string

// Representations
const (
	RepresentationPDF Representation = "pdf"
	RepresentationXML Representation = "xml"
)
