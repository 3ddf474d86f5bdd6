package facturxlib

import (
	"context"
	"encoding/json"
	"io"

	"github.com/jonboulle/clockwork"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/facturx"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/processor"
)

// Options configures a Toolkit
type Options struct {
	// AllowPlainFallback keeps the plain PDF when the XML cannot be embedded
	AllowPlainFallback bool
	// Clock stamps documents; nil uses the real clock
	Clock clockwork.Clock
}

// Toolkit generates, extracts, validates and inspects Factur-X documents
type Toolkit struct {
	service *processor.Service
}

// NewToolkit creates a toolkit with the given options
func NewToolkit(opts Options) *Toolkit {
	svcOpts := []processor.Option{processor.WithPlainFallback(opts.AllowPlainFallback)}
	if opts.Clock != nil {
		svcOpts = append(svcOpts, processor.WithClock(opts.Clock))
	}
	return &Toolkit{service: processor.NewService(nil, svcOpts...)}
}

// NewDefaultToolkit creates a toolkit with default options
func NewDefaultToolkit() *Toolkit {
	return NewToolkit(Options{})
}

// Generate renders a draft into a Factur-X PDF with its CII XML and metadata
func (t *Toolkit) Generate(ctx context.Context, d *Draft) (*Bundle, error) {
	return t.service.Build(ctx, d)
}

// GenerateJSON decodes a draft from r and generates it
func (t *Toolkit) GenerateJSON(ctx context.Context, r io.Reader) (*Bundle, error) {
	var d Draft
	if err := json.NewDecoder(r).Decode(&d); err != nil {
		return nil, model.NewInvalidDraft("", err.Error())
	}
	return t.Generate(ctx, &d)
}

// Extract returns the invoice XML embedded in a PDF
func (t *Toolkit) Extract(r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", model.NewExtractionFailure("failed to read input", err)
	}
	xml, _, found := facturx.ExtractXML(data)
	if !found {
		return "", model.NewExtractionFailure("no embedded invoice XML found in PDF", nil)
	}
	return xml, nil
}

// Validate performs the structural check of a CII document
func (t *Toolkit) Validate(xml string) ValidationResult {
	return cii.Validate(xml)
}

// Inspect derives the metadata record of a PDF or XML file
func (t *Toolkit) Inspect(filename string, r io.Reader) (*Metadata, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, model.NewExtractionFailure("failed to read input", err)
	}
	return t.service.Inspect(filename, data)
}
