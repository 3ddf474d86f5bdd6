// Package storage persists invoice bundles.
//
// A bundle is three artifacts stored under its invoice id: the composed PDF,
// the CII XML and the metadata record. Every Gateway replaces or creates the
// three together so a reader never sees a partial bundle.
package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/rezonia/facturx/internal/model"
)

// Artifact names inside a bundle
const (
	PDFName      = "invoice.pdf"
	XMLName      = "invoice.xml"
	MetadataName = "metadata.json"
)

// Gateway is the storage contract used by the pipeline
type Gateway interface {
	// Save writes the bundle, replacing any bundle with the same id
	Save(ctx context.Context, b *model.Bundle) error
	// Create writes the bundle only when the id is free; otherwise DuplicateInvoice
	Create(ctx context.Context, b *model.Bundle) error
	// Get returns the bundle or NotFound
	Get(ctx context.Context, id string) (*model.Bundle, error)
	// Metadata returns the metadata record or NotFound
	Metadata(ctx context.Context, id string) (*model.Metadata, error)
	// List returns the metadata of every stored bundle, in no particular order
	List(ctx context.Context) ([]model.Metadata, error)
	// Delete removes the bundle or returns NotFound
	Delete(ctx context.Context, id string) error
	// Close releases backend resources
	Close() error
}

// checkID rejects ids that would escape the storage namespace
func checkID(id string) error {
	clean, err := model.SanitizeID(id)
	if err != nil {
		return err
	}
	if clean != id {
		return model.NewInvalidIdentifier(id)
	}
	return nil
}

func checkBundle(b *model.Bundle) error {
	if b == nil {
		return model.NewPersistenceFailure("save", fmt.Errorf("nil bundle"))
	}
	return checkID(b.ID)
}

func encodeMetadata(md model.Metadata) ([]byte, error) {
	data, err := json.MarshalIndent(md, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return data, nil
}

func decodeMetadata(data []byte) (*model.Metadata, error) {
	var md model.Metadata
	if err := json.Unmarshal(data, &md); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	return &md, nil
}

// artifacts lists the bundle content keyed by artifact name
func artifacts(b *model.Bundle) (map[string][]byte, error) {
	md, err := encodeMetadata(b.Metadata)
	if err != nil {
		return nil, err
	}
	return map[string][]byte{
		PDFName:      b.PDF,
		XMLName:      []byte(b.XML),
		MetadataName: md,
	}, nil
}
