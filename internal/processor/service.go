// Package processor orchestrates invoice creation, ingestion and retrieval
// on top of the codec packages and a storage gateway.
package processor

import (
	"context"
	"errors"
	"sort"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/rezonia/facturx/internal/cii"
	"github.com/rezonia/facturx/internal/facturx"
	"github.com/rezonia/facturx/internal/finance"
	"github.com/rezonia/facturx/internal/logger"
	"github.com/rezonia/facturx/internal/model"
	"github.com/rezonia/facturx/internal/render"
	"github.com/rezonia/facturx/internal/storage"
)

// Sender forwards a stored invoice to a remote system
type Sender interface {
	Send(ctx context.Context, md model.Metadata) error
}

// Service is the invoice pipeline. It holds no mutable state of its own;
// the storage gateway is the only shared resource.
type Service struct {
	store      storage.Gateway
	renderer   render.Renderer
	composer   *facturx.Composer
	synth      *cii.Synthesizer
	extractor  *cii.Extractor
	normalizer *Normalizer
	sender     Sender
	clock      clockwork.Clock
	allowPlain bool
	log        zerolog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock sets the clock used for timestamps
func WithClock(c clockwork.Clock) Option {
	return func(s *Service) {
		s.clock = c
	}
}

// WithRenderer replaces the PDF renderer
func WithRenderer(r render.Renderer) Option {
	return func(s *Service) {
		s.renderer = r
	}
}

// WithExtractor replaces the metadata extractor
func WithExtractor(x *cii.Extractor) Option {
	return func(s *Service) {
		s.extractor = x
	}
}

// WithSender enables Send
func WithSender(snd Sender) Option {
	return func(s *Service) {
		s.sender = snd
	}
}

// WithPlainFallback keeps the plain rendered PDF when embedding the XML fails
func WithPlainFallback(enabled bool) Option {
	return func(s *Service) {
		s.allowPlain = enabled
	}
}

// NewService creates the pipeline over store. store may be nil when only
// Build and Inspect are used.
func NewService(store storage.Gateway, opts ...Option) *Service {
	s := &Service{
		store:     store,
		renderer:  render.NewMarotoRenderer(),
		extractor: cii.NewExtractor(),
		clock:     clockwork.NewRealClock(),
		log:       logger.WithComponent("processor"),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.synth = cii.NewSynthesizer(s.clock)
	s.composer = facturx.NewComposer(facturx.WithClock(s.clock))
	s.normalizer = NewNormalizer(s.clock)
	return s
}

// Build renders, synthesizes and composes a draft into a bundle without
// storing it
func (s *Service) Build(ctx context.Context, d *model.Draft) (*model.Bundle, error) {
	if d == nil {
		return nil, model.NewInvalidDraft("", "empty request")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	id, err := d.ID()
	if err != nil {
		return nil, err
	}
	log := s.log.With().Str("id", id).Logger()

	totals := finance.Aggregate(d.Items)
	xml, err := s.synth.Synthesize(d, totals)
	if err != nil {
		return nil, model.NewEmbeddingFailure(err)
	}
	plain, err := s.renderer.RenderInvoice(ctx, d, totals)
	if err != nil {
		log.Error().Err(err).Msg("invoice rendering failed")
		return nil, err
	}

	pdf, err := s.composer.Compose(plain, xml, "Invoice "+d.Number)
	if err != nil {
		if !s.allowPlain {
			log.Error().Err(err).Msg("embedding failed")
			return nil, err
		}
		log.Warn().Err(err).Msg("embedding failed, keeping plain PDF")
		pdf = plain
	}

	return &model.Bundle{
		ID:       id,
		PDF:      pdf,
		XML:      xml,
		Metadata: s.normalizer.FromDraft(id, d, totals),
	}, nil
}

// Create builds a draft and stores the bundle, replacing any bundle with the
// same id. It returns the stored bundle.
func (s *Service) Create(ctx context.Context, d *model.Draft) (*model.Bundle, error) {
	b, err := s.Build(ctx, d)
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, b); err != nil {
		s.log.Error().Err(err).Str("id", b.ID).Msg("failed to store bundle")
		return nil, err
	}
	s.log.Info().Str("id", b.ID).Str("total_ttc", b.Metadata.TotalTTC.StringFixed(2)).Msg("invoice created")
	return b, nil
}

// Get returns the requested artifact of a stored bundle
func (s *Service) Get(ctx context.Context, rawID string, rep model.Representation) ([]byte, error) {
	id, err := model.SanitizeID(rawID)
	if err != nil {
		return nil, err
	}
	b, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rep == model.RepresentationXML {
		return []byte(b.XML), nil
	}
	return b.PDF, nil
}

// Metadata returns the metadata record of a stored bundle
func (s *Service) Metadata(ctx context.Context, rawID string) (*model.Metadata, error) {
	id, err := model.SanitizeID(rawID)
	if err != nil {
		return nil, err
	}
	return s.store.Metadata(ctx, id)
}

// List returns every metadata record ordered by id
func (s *Service) List(ctx context.Context) ([]model.Metadata, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
	return list, nil
}

// Delete removes a stored bundle
func (s *Service) Delete(ctx context.Context, rawID string) error {
	id, err := model.SanitizeID(rawID)
	if err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	s.log.Info().Str("id", id).Msg("invoice deleted")
	return nil
}

// ErrSenderDisabled is the cause reported when no remote API is configured
var ErrSenderDisabled = errors.New("remote API not configured")

// Send forwards a stored invoice to the remote API
func (s *Service) Send(ctx context.Context, rawID string) error {
	id, err := model.SanitizeID(rawID)
	if err != nil {
		return err
	}
	md, err := s.store.Metadata(ctx, id)
	if err != nil {
		return err
	}
	if s.sender == nil {
		return model.NewRemoteSendFailure("cannot send invoice", ErrSenderDisabled)
	}
	return s.sender.Send(ctx, *md)
}
