package storage

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/rezonia/facturx/internal/logger"
	"github.com/rezonia/facturx/internal/model"
)

// Bucket driver errors
var (
	ErrObjectNotFound = errors.New("object not found")
	ErrObjectExists   = errors.New("object already exists")
)

// Bucket is a flat key/value object store
type Bucket interface {
	Write(ctx context.Context, key string, data []byte) error
	// WriteIfAbsent fails with ErrObjectExists when key is already present
	WriteIfAbsent(ctx context.Context, key string, data []byte) error
	// Read fails with ErrObjectNotFound when key is absent
	Read(ctx context.Context, key string) ([]byte, error)
	// Delete succeeds when key is absent
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

const (
	headName       = "HEAD"
	maxHeadRetries = 10

	// StaleGeneration is the age past which a generation that HEAD does not
	// name is reclaimed. It must exceed the longest possible Save.
	StaleGeneration = time.Hour
)

// ObjectStore keeps each bundle generation under <id>/<generation>/ and commits
// it by writing <id>/HEAD. Readers resolve HEAD first, so a half-written
// generation is never visible. Generation names are UUIDv7 and carry their
// creation time.
type ObjectStore struct {
	bucket Bucket
	clock  clockwork.Clock
	log    zerolog.Logger
}

var _ Gateway = (*ObjectStore)(nil)

// ObjectOption configures an ObjectStore
type ObjectOption func(*ObjectStore)

// WithObjectClock sets the clock used to age generations
func WithObjectClock(c clockwork.Clock) ObjectOption {
	return func(s *ObjectStore) {
		s.clock = c
	}
}

// NewObjectStore wraps a bucket driver
func NewObjectStore(bucket Bucket, opts ...ObjectOption) *ObjectStore {
	s := &ObjectStore{
		bucket: bucket,
		clock:  clockwork.NewRealClock(),
		log:    logger.WithComponent("storage.object"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func headKey(id string) string { return id + "/" + headName }

func artifactKey(id, gen, name string) string { return path.Join(id, gen, name) }

// writeGeneration uploads the artifacts of b under a new generation
func (s *ObjectStore) writeGeneration(ctx context.Context, b *model.Bundle) (string, error) {
	files, err := artifacts(b)
	if err != nil {
		return "", err
	}
	u, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	gen := u.String()
	for name, data := range files {
		if err := s.bucket.Write(ctx, artifactKey(b.ID, gen, name), data); err != nil {
			s.dropGeneration(ctx, b.ID, gen)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return gen, nil
}

func (s *ObjectStore) dropGeneration(ctx context.Context, id, gen string) {
	for _, name := range []string{PDFName, XMLName, MetadataName} {
		if err := s.bucket.Delete(ctx, artifactKey(id, gen, name)); err != nil {
			s.log.Warn().Err(err).Str("id", id).Str("generation", gen).Msg("failed to remove generation artifact")
		}
	}
}

// generationTime decodes the creation time of a UUIDv7 generation name
func generationTime(gen string) (time.Time, bool) {
	u, err := uuid.Parse(gen)
	if err != nil || u.Version() != 7 {
		return time.Time{}, false
	}
	ms := int64(binary.BigEndian.Uint64(u[:8]) >> 16)
	return time.UnixMilli(ms), true
}

// sweepStale removes generations of id that are not live and older than
// StaleGeneration. Younger ones may belong to a Save that has not committed yet.
func (s *ObjectStore) sweepStale(ctx context.Context, id, live string) {
	keys, err := s.bucket.Keys(ctx, id+"/")
	if err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("failed to list generations")
		return
	}
	now := s.clock.Now()
	for _, key := range keys {
		gen, _, ok := strings.Cut(strings.TrimPrefix(key, id+"/"), "/")
		if !ok || gen == live {
			continue
		}
		created, ok := generationTime(gen)
		if !ok || now.Sub(created) < StaleGeneration {
			continue
		}
		if err := s.bucket.Delete(ctx, key); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("failed to remove stale artifact")
		}
	}
}

func (s *ObjectStore) head(ctx context.Context, id string) (string, error) {
	data, err := s.bucket.Read(ctx, headKey(id))
	if errors.Is(err, ErrObjectNotFound) {
		return "", model.NewNotFound(id)
	}
	if err != nil {
		return "", model.NewPersistenceFailure("read", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// Save uploads a new generation and moves HEAD onto it
func (s *ObjectStore) Save(ctx context.Context, b *model.Bundle) error {
	if err := checkBundle(b); err != nil {
		return err
	}
	previous, err := s.head(ctx, b.ID)
	if err != nil && !errors.Is(err, model.ErrNotFound) {
		return err
	}

	gen, err := s.writeGeneration(ctx, b)
	if err != nil {
		return model.NewPersistenceFailure("save", err)
	}
	if err := s.bucket.Write(ctx, headKey(b.ID), []byte(gen)); err != nil {
		s.dropGeneration(ctx, b.ID, gen)
		return model.NewPersistenceFailure("save", fmt.Errorf("commit bundle: %w", err))
	}
	if previous != "" && previous != gen {
		s.dropGeneration(ctx, b.ID, previous)
	}
	// a concurrent Save may have committed over the same previous generation
	s.sweepStale(ctx, b.ID, gen)
	s.log.Debug().Str("id", b.ID).Str("generation", gen).Msg("bundle saved")
	return nil
}

// Create commits the generation only if HEAD does not exist yet
func (s *ObjectStore) Create(ctx context.Context, b *model.Bundle) error {
	if err := checkBundle(b); err != nil {
		return err
	}
	gen, err := s.writeGeneration(ctx, b)
	if err != nil {
		return model.NewPersistenceFailure("create", err)
	}
	err = s.bucket.WriteIfAbsent(ctx, headKey(b.ID), []byte(gen))
	if errors.Is(err, ErrObjectExists) {
		s.dropGeneration(ctx, b.ID, gen)
		return model.NewDuplicateInvoice(b.ID)
	}
	if err != nil {
		s.dropGeneration(ctx, b.ID, gen)
		return model.NewPersistenceFailure("create", fmt.Errorf("commit bundle: %w", err))
	}
	s.log.Debug().Str("id", b.ID).Str("generation", gen).Msg("bundle created")
	return nil
}

// readArtifacts reads names from the live generation. A replace may drop
// the generation between the HEAD read and the artifact read, so HEAD is
// resolved again as long as it keeps moving.
func (s *ObjectStore) readArtifacts(ctx context.Context, id string, names ...string) ([][]byte, error) {
	gen, err := s.head(ctx, id)
	if err != nil {
		return nil, err
	}
	for attempt := 0; ; attempt++ {
		out := make([][]byte, 0, len(names))
		var missing bool
		for _, name := range names {
			data, err := s.bucket.Read(ctx, artifactKey(id, gen, name))
			if errors.Is(err, ErrObjectNotFound) {
				missing = true
				break
			}
			if err != nil {
				return nil, model.NewPersistenceFailure("read", err)
			}
			out = append(out, data)
		}
		if !missing {
			return out, nil
		}
		if attempt >= maxHeadRetries {
			return nil, model.NewPersistenceFailure("read", fmt.Errorf("bundle %s kept changing during read", id))
		}
		next, err := s.head(ctx, id)
		if err != nil {
			return nil, err
		}
		if next == gen {
			return nil, model.NewPersistenceFailure("read", fmt.Errorf("generation %s of %s is incomplete", gen, id))
		}
		gen = next
	}
}

// Get returns the live generation of the bundle
func (s *ObjectStore) Get(ctx context.Context, id string) (*model.Bundle, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	parts, err := s.readArtifacts(ctx, id, PDFName, XMLName, MetadataName)
	if err != nil {
		return nil, err
	}
	md, err := decodeMetadata(parts[2])
	if err != nil {
		return nil, model.NewPersistenceFailure("get", err)
	}
	return &model.Bundle{ID: id, PDF: parts[0], XML: string(parts[1]), Metadata: *md}, nil
}

// Metadata returns the metadata record of the live generation
func (s *ObjectStore) Metadata(ctx context.Context, id string) (*model.Metadata, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	parts, err := s.readArtifacts(ctx, id, MetadataName)
	if err != nil {
		return nil, err
	}
	md, err := decodeMetadata(parts[0])
	if err != nil {
		return nil, model.NewPersistenceFailure("metadata", err)
	}
	return md, nil
}

// List resolves every HEAD pointer in the bucket
func (s *ObjectStore) List(ctx context.Context) ([]model.Metadata, error) {
	keys, err := s.bucket.Keys(ctx, "")
	if err != nil {
		return nil, model.NewPersistenceFailure("list", err)
	}
	out := make([]model.Metadata, 0)
	for _, key := range keys {
		id, ok := strings.CutSuffix(key, "/"+headName)
		if !ok || strings.Contains(id, "/") {
			continue
		}
		md, err := s.Metadata(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			continue
		}
		if err != nil {
			s.log.Warn().Err(err).Str("id", id).Msg("skipping unreadable bundle")
			continue
		}
		out = append(out, *md)
	}
	return out, nil
}

// Delete removes HEAD first so the bundle disappears at once, then the
// generation HEAD named. Other generations may belong to a Save in flight
// and are left to the stale sweep.
func (s *ObjectStore) Delete(ctx context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	gen, err := s.head(ctx, id)
	if err != nil {
		return err
	}
	if err := s.bucket.Delete(ctx, headKey(id)); err != nil {
		return model.NewPersistenceFailure("delete", err)
	}
	s.dropGeneration(ctx, id, gen)
	s.sweepStale(ctx, id, "")
	s.log.Debug().Str("id", id).Msg("bundle deleted")
	return nil
}

// Close closes the bucket driver
func (s *ObjectStore) Close() error {
	return s.bucket.Close()
}
