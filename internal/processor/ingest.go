package processor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/beevik/etree"
	"github.com/rs/zerolog"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/facturx"
	"github.com/rezonia/facturx/internal/model"
)

// State is a step of the upload state machine
type State string

// Upload states
const (
	StateReceived       State = "RECEIVED"
	StateExtract        State = "EXTRACT_OR_DECODE"
	StateValidate       State = "VALIDATE"
	StateMetadata       State = "METADATA_DERIVE"
	StateDuplicateCheck State = "DUPLICATE_CHECK"
	StatePlaceholder    State = "PLACEHOLDER_RENDER"
	StatePersist        State = "PERSIST"
	StateDone           State = "DONE"
	StateRejected       State = "REJECTED"
)

// ingestion tracks one upload through the state machine
type ingestion struct {
	log   zerolog.Logger
	state State
}

func (in *ingestion) enter(next State) {
	in.log.Debug().Str("from", string(in.state)).Str("to", string(next)).Msg("upload transition")
	in.state = next
}

// reject logs the typed reason and ends the upload. Nothing has been persisted.
func (in *ingestion) reject(err error) error {
	kind := model.KindOf(err)
	ev := in.log.Warn()
	if kind == model.KindPersistenceFailure || kind == model.KindRenderFailure {
		ev = in.log.Error()
	}
	var me *model.Error
	if errors.As(err, &me) && me.Reason != "" {
		ev = ev.Str("reason", me.Reason)
	}
	ev.Err(err).Str("state", string(in.state)).Str("kind", string(kind)).Msg("upload rejected")
	in.state = StateRejected
	return err
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Decode returns the invoice XML carried by an upload: the embedded
// attachment of a PDF, or the text of an XML file.
func Decode(filename string, data []byte) (string, Format, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return "", FormatUnknown, model.NewEmptyUpload()
	}
	format := ResolveFormat(filename, data)
	switch format {
	case FormatPDF:
		xml, _, found := facturx.ExtractXML(data)
		if !found {
			return "", format, model.NewExtractionFailure("no embedded invoice XML found in PDF", nil)
		}
		return xml, format, nil
	case FormatXML:
		text := bytes.TrimPrefix(data, utf8BOM)
		if !utf8.Valid(text) {
			return "", format, model.NewExtractionFailure("XML upload is not valid UTF-8", nil)
		}
		return string(text), format, nil
	}
	return "", format, model.NewUnsupportedFileType(filename)
}

// derived is the outcome of the read-only steps of an upload
type derived struct {
	format   Format
	xml      string
	metadata model.Metadata
}

// derive runs an upload up to metadata derivation. Nothing is persisted.
func (s *Service) derive(in *ingestion, filename string, data []byte) (*derived, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, in.reject(model.NewEmptyUpload())
	}
	format := ResolveFormat(filename, data)
	if format == FormatUnknown {
		return nil, in.reject(model.NewUnsupportedFileType(filename))
	}

	in.enter(StateExtract)
	xml, _, err := Decode(filename, data)
	if err != nil {
		return nil, in.reject(err)
	}

	in.enter(StateValidate)
	doc, err := validate(xml)
	if err != nil {
		return nil, in.reject(err)
	}

	in.enter(StateMetadata)
	em := s.extractor.ExtractDocument(doc)
	if !em.Valid {
		return nil, in.reject(model.NewIncompleteMetadata(em.MissingFields()))
	}
	id, err := model.SanitizeID(em.ID)
	if err != nil {
		return nil, in.reject(err)
	}
	in.log = in.log.With().Str("id", id).Logger()
	return &derived{format: format, xml: xml, metadata: s.normalizer.FromExtracted(id, em)}, nil
}

// Inspect derives the metadata record an upload of data would produce
// without storing anything
func (s *Service) Inspect(filename string, data []byte) (*model.Metadata, error) {
	in := &ingestion{log: s.log.With().Str("filename", filename).Logger()}
	in.enter(StateReceived)
	d, err := s.derive(in, filename, data)
	if err != nil {
		return nil, err
	}
	return &d.metadata, nil
}

// Upload runs an uploaded file through extraction, validation and metadata
// derivation and stores it. The pipeline is all-or-nothing: any rejection
// leaves storage untouched.
func (s *Service) Upload(ctx context.Context, filename string, data []byte) (*model.Metadata, error) {
	in := &ingestion{log: s.log.With().Str("filename", filename).Logger()}
	in.enter(StateReceived)

	d, err := s.derive(in, filename, data)
	if err != nil {
		return nil, err
	}
	md := d.metadata

	in.enter(StateDuplicateCheck)
	if _, err := s.store.Metadata(ctx, md.ID); err == nil {
		return nil, in.reject(model.NewDuplicateInvoice(md.ID))
	} else if !errors.Is(err, model.ErrNotFound) {
		return nil, in.reject(err)
	}

	pdf := data
	if d.format == FormatXML {
		in.enter(StatePlaceholder)
		if pdf, err = s.placeholder(ctx, md, d.xml); err != nil {
			return nil, in.reject(err)
		}
	}

	in.enter(StatePersist)
	b := &model.Bundle{ID: md.ID, PDF: pdf, XML: d.xml, Metadata: md}
	if err := s.store.Create(ctx, b); err != nil {
		return nil, in.reject(err)
	}

	in.enter(StateDone)
	in.log.Info().Str("format", d.format.String()).Msg("invoice uploaded")
	return &md, nil
}

// validate parses xml and checks its structure
func validate(xml string) (*etree.Document, error) {
	doc, err := cii.Parse(xml)
	if err != nil {
		return nil, model.NewValidationFailure(fmt.Sprintf("XML syntax error: %v", err))
	}
	if res := cii.ValidateDocument(doc); !res.Valid() {
		return nil, res.Err()
	}
	return doc, nil
}

// placeholder renders the summary page of an XML-only upload and embeds the
// uploaded XML into it. A failed embedding keeps the plain page.
func (s *Service) placeholder(ctx context.Context, md model.Metadata, xml string) ([]byte, error) {
	page, err := s.renderer.RenderPlaceholder(ctx, md)
	if err != nil {
		if model.KindOf(err) != model.KindRenderFailure {
			err = model.NewRenderFailure(err)
		}
		return nil, err
	}
	pdf, err := s.composer.Compose(page, xml, "Invoice "+md.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("id", md.ID).Msg("placeholder kept without embedded XML")
		return page, nil
	}
	return pdf, nil
}
