package model

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure surfaced by the codec, the pipeline or a storage backend
type Kind string

// Error kinds
const (
	KindInvalidIdentifier   Kind = "INVALID_IDENTIFIER"
	KindInvalidDraft        Kind = "INVALID_DRAFT"
	KindNotFound            Kind = "NOT_FOUND"
	KindUnsupportedFileType Kind = "UNSUPPORTED_FILE_TYPE"
	KindEmptyUpload         Kind = "EMPTY_UPLOAD"
	KindExtractionFailure   Kind = "EXTRACTION_FAILURE"
	KindValidationFailure   Kind = "VALIDATION_FAILURE"
	KindIncompleteMetadata  Kind = "INCOMPLETE_METADATA"
	KindDuplicateInvoice    Kind = "DUPLICATE_INVOICE"
	KindEmbeddingFailure    Kind = "EMBEDDING_FAILURE"
	KindRenderFailure       Kind = "RENDER_FAILURE"
	KindPersistenceFailure  Kind = "PERSISTENCE_FAILURE"
	KindRemoteSendFailure   Kind = "REMOTE_SEND_FAILURE"
)

// Sentinels for errors.Is matching. Only the Kind is compared.
var (
	ErrInvalidIdentifier   = &Error{Kind: KindInvalidIdentifier}
	ErrInvalidDraft        = &Error{Kind: KindInvalidDraft}
	ErrNotFound            = &Error{Kind: KindNotFound}
	ErrUnsupportedFileType = &Error{Kind: KindUnsupportedFileType}
	ErrEmptyUpload         = &Error{Kind: KindEmptyUpload}
	ErrExtractionFailure   = &Error{Kind: KindExtractionFailure}
	ErrValidationFailure   = &Error{Kind: KindValidationFailure}
	ErrIncompleteMetadata  = &Error{Kind: KindIncompleteMetadata}
	ErrDuplicateInvoice    = &Error{Kind: KindDuplicateInvoice}
	ErrEmbeddingFailure    = &Error{Kind: KindEmbeddingFailure}
	ErrRenderFailure       = &Error{Kind: KindRenderFailure}
	ErrPersistenceFailure  = &Error{Kind: KindPersistenceFailure}
	ErrRemoteSendFailure   = &Error{Kind: KindRemoteSendFailure}
)

// Error is the typed failure returned across package boundaries
type Error struct {
	Kind    Kind
	Message string
	// Reason names the specific structural problem for validation failures
	Reason string
	// Fields lists missing metadata fields for incomplete metadata
	Fields []string
	Cause  error
}

func (e *Error) Error() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("]")
	if e.Message != "" {
		b.WriteString(" ")
		b.WriteString(e.Message)
	}
	if e.Reason != "" {
		b.WriteString(": ")
		b.WriteString(e.Reason)
	}
	if len(e.Fields) > 0 {
		fmt.Fprintf(&b, " (missing: %s)", strings.Join(e.Fields, ", "))
	}
	if e.Cause != nil {
		fmt.Fprintf(&b, " (%v)", e.Cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches any *Error of the same Kind
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// KindOf returns the Kind of the first *Error in the chain, or "" when there is none
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// NewError creates a new error of the given kind
func NewError(kind Kind, message string, cause error) *Error {
	return &Error{
		Kind:    kind,
		Message: message,
		Cause:   cause,
	}
}

// NewInvalidIdentifier reports an identifier that is empty after sanitization
func NewInvalidIdentifier(raw string) *Error {
	return NewError(KindInvalidIdentifier, fmt.Sprintf("invoice identifier %q is empty after sanitization", raw), nil)
}

// NewInvalidDraft reports a malformed creation request
func NewInvalidDraft(field, message string) *Error {
	return &Error{
		Kind:    KindInvalidDraft,
		Message: message,
		Reason:  field,
	}
}

// NewNotFound reports an absent bundle
func NewNotFound(id string) *Error {
	return NewError(KindNotFound, fmt.Sprintf("invoice %s not found", id), nil)
}

// NewUnsupportedFileType reports an upload that is neither PDF nor XML
func NewUnsupportedFileType(filename string) *Error {
	return NewError(KindUnsupportedFileType, fmt.Sprintf("unsupported file type: %s (expected .pdf or .xml)", filename), nil)
}

// NewEmptyUpload reports an upload with no content
func NewEmptyUpload() *Error {
	return NewError(KindEmptyUpload, "uploaded file is empty", nil)
}

// NewExtractionFailure reports a missing or undecodable embedded payload
func NewExtractionFailure(message string, cause error) *Error {
	return NewError(KindExtractionFailure, message, cause)
}

// NewValidationFailure carries the specific structural reason
func NewValidationFailure(reason string) *Error {
	return &Error{
		Kind:    KindValidationFailure,
		Message: "invalid CII document",
		Reason:  reason,
	}
}

// NewIncompleteMetadata carries the names of the missing required fields
func NewIncompleteMetadata(fields []string) *Error {
	return &Error{
		Kind:    KindIncompleteMetadata,
		Message: "required invoice fields could not be extracted",
		Fields:  fields,
	}
}

// NewDuplicateInvoice reports an id that is already persisted
func NewDuplicateInvoice(id string) *Error {
	return NewError(KindDuplicateInvoice, fmt.Sprintf("invoice %s already exists", id), nil)
}

// NewEmbeddingFailure reports a failed XML-into-PDF composition
func NewEmbeddingFailure(cause error) *Error {
	return NewError(KindEmbeddingFailure, "failed to embed XML into PDF", cause)
}

// NewRenderFailure reports a failed PDF rendering
func NewRenderFailure(cause error) *Error {
	return NewError(KindRenderFailure, "failed to render PDF", cause)
}

// NewPersistenceFailure wraps a storage error
func NewPersistenceFailure(op string, cause error) *Error {
	return NewError(KindPersistenceFailure, op, cause)
}

// NewRemoteSendFailure wraps a forwarding error
func NewRemoteSendFailure(message string, cause error) *Error {
	return NewError(KindRemoteSendFailure, message, cause)
}
