// Package facturxlib provides a public API for producing and reading
// Factur-X hybrid invoices without any storage.
//
// Example usage:
//
//	tk := facturxlib.NewDefaultToolkit()
//	bundle, err := tk.Generate(ctx, draft)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	os.WriteFile("invoice.pdf", bundle.PDF, 0o644)
package facturxlib

import (
	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/model"
)

// Re-export core types for public API
type (
	Draft      = model.Draft
	Date       = model.Date
	Party      = model.Party
	Address    = model.Address
	LineItem   = model.LineItem
	Payment    = model.Payment
	References = model.References
	Metadata   = model.Metadata
	Bundle     = model.Bundle
)

// Re-export validation types
type (
	ValidationResult = cii.ValidationResult
	Status           = cii.Status
)

// Re-export validation statuses
const (
	StatusValid     = cii.StatusValid
	StatusInvalid   = cii.StatusInvalid
	StatusMalformed = cii.StatusMalformed
)

// Re-export error types
type (
	Error = model.Error
	Kind  = model.Kind
)

// Re-export sentinels for errors.Is
var (
	ErrInvalidDraft        = model.ErrInvalidDraft
	ErrUnsupportedFileType = model.ErrUnsupportedFileType
	ErrEmptyUpload         = model.ErrEmptyUpload
	ErrExtractionFailure   = model.ErrExtractionFailure
	ErrValidationFailure   = model.ErrValidationFailure
	ErrIncompleteMetadata  = model.ErrIncompleteMetadata
	ErrEmbeddingFailure    = model.ErrEmbeddingFailure
	ErrRenderFailure       = model.ErrRenderFailure
)
