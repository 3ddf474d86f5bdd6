package cii

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"

	"github.com/rezonia/facturx/internal/model"
)

// RootElement is the local name of the CII document element
const RootElement = "CrossIndustryInvoice"

// Status is the outcome of a structural check
type Status int

const (
	// StatusValid means every required element is present
	StatusValid Status = iota
	// StatusInvalid means the XML parsed but a required element is missing
	StatusInvalid
	// StatusMalformed means the text is not well-formed XML
	StatusMalformed
)

func (s Status) String() string {
	switch s {
	case StatusValid:
		return "valid"
	case StatusInvalid:
		return "invalid"
	case StatusMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// ValidationResult carries the status and, when not valid, the specific reason
type ValidationResult struct {
	Status Status
	Reason string
}

// Valid reports whether the document passed
func (r ValidationResult) Valid() bool {
	return r.Status == StatusValid
}

// Err converts a failed result into a ValidationFailure
func (r ValidationResult) Err() error {
	if r.Valid() {
		return nil
	}
	return model.NewValidationFailure(r.Reason)
}

type requirement struct {
	name    string
	locator Locator
}

var requiredSections = []requirement{
	{"ExchangedDocumentContext", MustCompile("//rsm:ExchangedDocumentContext")},
	{"ExchangedDocument", MustCompile("//rsm:ExchangedDocument")},
	{"SupplyChainTradeTransaction", MustCompile("//rsm:SupplyChainTradeTransaction")},
}

var (
	invoiceIDLocator  = MustCompile("//rsm:ExchangedDocument/ram:ID")
	sellerNameLocator = MustCompile("//ram:SellerTradeParty/ram:Name")
	buyerNameLocator  = MustCompile("//ram:BuyerTradeParty/ram:Name")
)

// Parse reads XML text into a document with a root element
func Parse(text string) (*etree.Document, error) {
	if err := checkWellFormed(text); err != nil {
		return nil, err
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, err
	}
	if doc.Root() == nil {
		return nil, fmt.Errorf("no root element")
	}
	return doc, nil
}

// checkWellFormed runs the strict decoder over the whole input so that
// unbalanced or unclosed elements are reported as syntax errors.
func checkWellFormed(text string) error {
	dec := xml.NewDecoder(strings.NewReader(text))
	dec.CharsetReader = func(_ string, r io.Reader) (io.Reader, error) { return r, nil }
	for {
		_, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// Validate performs the structural check of a CII document
func Validate(text string) ValidationResult {
	doc, err := Parse(text)
	if err != nil {
		return ValidationResult{Status: StatusMalformed, Reason: fmt.Sprintf("XML syntax error: %v", err)}
	}
	return ValidateDocument(doc)
}

// ValidateDocument performs the structural check on an already parsed document
func ValidateDocument(doc *etree.Document) ValidationResult {
	root := doc.Root()
	if root == nil || root.Tag != RootElement {
		return invalid("Root element is not CrossIndustryInvoice")
	}

	ns := ResolveNamespaces(root)
	for _, req := range requiredSections {
		e := req.locator.Find(root, ns)
		if e == nil {
			return invalid("Missing required element: " + req.name)
		}
		if len(e.ChildElements()) == 0 && strings.TrimSpace(e.Text()) == "" {
			return invalid("Empty required element: " + req.name)
		}
	}

	if _, ok := invoiceIDLocator.Text(root, ns); !ok {
		return invalid("Missing invoice ID (ExchangedDocument/ID)")
	}
	if _, ok := sellerNameLocator.Text(root, ns); !ok {
		return invalid("Missing seller name")
	}
	if _, ok := buyerNameLocator.Text(root, ns); !ok {
		return invalid("Missing buyer name")
	}
	return ValidationResult{Status: StatusValid}
}

func invalid(reason string) ValidationResult {
	return ValidationResult{Status: StatusInvalid, Reason: reason}
}
