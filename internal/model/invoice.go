package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when a draft does not name one
const DefaultCurrency = "EUR"

// DefaultPaymentMeansCode is UNTDID 4461 "credit transfer"
const DefaultPaymentMeansCode = "30"

// DateLayout is the ISO calendar date layout used in JSON and metadata
const DateLayout = "2006-01-02"

// Date is a calendar date serialized as YYYY-MM-DD
type Date struct {
	time.Time
}

// NewDate creates a Date at midnight UTC
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses a YYYY-MM-DD string
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String returns YYYY-MM-DD, or "" for the zero date
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// MarshalJSON implements json.Marshaler
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == "" {
		*d = Date{}
		return nil
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// Address is a postal address
type Address struct {
	Street      string `json:"street"`
	ZipCode     string `json:"zip_code"`
	City        string `json:"city"`
	CountryCode string `json:"country_code"` // ISO 3166-1 alpha-2
}

// Party is a seller or buyer
type Party struct {
	Name    string  `json:"name"`
	Address Address `json:"address"`
	VATID   string  `json:"vat_id,omitempty"`
	SIRET   string  `json:"siret,omitempty"`
	Email   string  `json:"email,omitempty"`
}

// LineItem is one invoiced line. Quantity × UnitPrice is its tax-basis contribution.
type LineItem struct {
	Description string          `json:"description"`
	Quantity    decimal.Decimal `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	VATRate     decimal.Decimal `json:"vat_rate"` // percentage, e.g. 20.0
}

// Total returns quantity × unit price, unrounded
func (li LineItem) Total() decimal.Decimal {
	return li.Quantity.Mul(li.UnitPrice)
}

// Payment holds the optional payment instructions
type Payment struct {
	IBAN      string `json:"iban"`
	MeansCode string `json:"means_code,omitempty"`
}

// Code returns the payment means code, defaulting to credit transfer
func (p Payment) Code() string {
	if p.MeansCode == "" {
		return DefaultPaymentMeansCode
	}
	return p.MeansCode
}

// References holds optional buyer-side references
type References struct {
	BuyerReference string `json:"buyer_reference,omitempty"`
	OrderReference string `json:"order_reference,omitempty"`
}

// Draft is an invoice creation request. It is ephemeral and never persisted as such.
type Draft struct {
	Number     string      `json:"invoice_number"`
	Date       Date        `json:"date"`
	Seller     Party       `json:"seller"`
	Buyer      Party       `json:"buyer"`
	Items      []LineItem  `json:"items"`
	Payment    *Payment    `json:"payment,omitempty"`
	References *References `json:"references,omitempty"`
	Currency   string      `json:"currency,omitempty"`
}

// CurrencyCode returns the draft currency, defaulting to EUR
func (d *Draft) CurrencyCode() string {
	if d.Currency == "" {
		return DefaultCurrency
	}
	return strings.ToUpper(d.Currency)
}

// ID returns the sanitized invoice number
func (d *Draft) ID() (string, error) {
	return SanitizeID(d.Number)
}

// Validate checks the draft shape before any computation happens
func (d *Draft) Validate() error {
	if strings.TrimSpace(d.Number) == "" {
		return NewInvalidDraft("invoice_number", "invoice number is required")
	}
	if _, err := d.ID(); err != nil {
		return err
	}
	if d.Date.IsZero() {
		return NewInvalidDraft("date", "issue date is required")
	}
	if err := validateParty("seller", d.Seller); err != nil {
		return err
	}
	if err := validateParty("buyer", d.Buyer); err != nil {
		return err
	}
	if len(d.Items) == 0 {
		return NewInvalidDraft("items", "at least one line item is required")
	}
	for i, item := range d.Items {
		if strings.TrimSpace(item.Description) == "" {
			return NewInvalidDraft(fmt.Sprintf("items[%d].description", i), "line description is required")
		}
	}
	if d.Currency != "" && len(d.Currency) != 3 {
		return NewInvalidDraft("currency", "currency must be an ISO 4217 code")
	}
	return nil
}

func validateParty(role string, p Party) error {
	if strings.TrimSpace(p.Name) == "" {
		return NewInvalidDraft(role+".name", role+" name is required")
	}
	a := p.Address
	switch {
	case a.Street == "":
		return NewInvalidDraft(role+".address.street", role+" street is required")
	case a.ZipCode == "":
		return NewInvalidDraft(role+".address.zip_code", role+" zip code is required")
	case a.City == "":
		return NewInvalidDraft(role+".address.city", role+" city is required")
	case len(a.CountryCode) != 2:
		return NewInvalidDraft(role+".address.country_code", role+" country code must be ISO 3166-1 alpha-2")
	}
	return nil
}

// SanitizeID keeps ASCII letters, digits, '-' and '_'. An empty result is an InvalidIdentifier error.
func SanitizeID(raw string) (string, error) {
	var b strings.Builder
	for _, r := range raw {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", NewInvalidIdentifier(raw)
	}
	return b.String(), nil
}
