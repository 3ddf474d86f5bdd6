package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rezonia/facturx/internal/logger"
	"github.com/rezonia/facturx/internal/model"
)

const (
	tmpPrefix   = ".tmp-"
	trashPrefix = ".trash-"
)

// Local stores one directory per invoice id under root.
// Bundles are staged in a hidden sibling directory and renamed into place.
type Local struct {
	root string
	mu   sync.RWMutex
	log  zerolog.Logger
}

var _ Gateway = (*Local)(nil)

// NewLocal creates the root directory when needed
func NewLocal(root string) (*Local, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, model.NewPersistenceFailure("init", fmt.Errorf("create storage root: %w", err))
	}
	s := &Local{root: root, log: logger.WithComponent("storage.local")}
	s.sweep()
	return s, nil
}

// Root returns the storage directory
func (s *Local) Root() string { return s.root }

// sweep removes staging and trash directories left by an interrupted process
func (s *Local) sweep() {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return
	}
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, tmpPrefix) || strings.HasPrefix(name, trashPrefix) {
			_ = os.RemoveAll(filepath.Join(s.root, name))
		}
	}
}

func (s *Local) dir(id string) string {
	return filepath.Join(s.root, id)
}

// stage writes the bundle into a fresh hidden directory and returns its path
func (s *Local) stage(b *model.Bundle) (string, error) {
	files, err := artifacts(b)
	if err != nil {
		return "", err
	}
	tmp := filepath.Join(s.root, tmpPrefix+uuid.NewString())
	if err := os.Mkdir(tmp, 0o755); err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(tmp, name), data, 0o644); err != nil {
			_ = os.RemoveAll(tmp)
			return "", fmt.Errorf("write %s: %w", name, err)
		}
	}
	return tmp, nil
}

// Save replaces the bundle directory in one rename
func (s *Local) Save(_ context.Context, b *model.Bundle) error {
	if err := checkBundle(b); err != nil {
		return err
	}
	tmp, err := s.stage(b)
	if err != nil {
		return model.NewPersistenceFailure("save", err)
	}

	final := s.dir(b.ID)
	trash := ""

	s.mu.Lock()
	if _, err := os.Stat(final); err == nil {
		trash = filepath.Join(s.root, trashPrefix+uuid.NewString())
		if err := os.Rename(final, trash); err != nil {
			s.mu.Unlock()
			_ = os.RemoveAll(tmp)
			return model.NewPersistenceFailure("save", fmt.Errorf("move previous bundle: %w", err))
		}
	}
	if err := os.Rename(tmp, final); err != nil {
		if trash != "" {
			_ = os.Rename(trash, final)
		}
		s.mu.Unlock()
		_ = os.RemoveAll(tmp)
		return model.NewPersistenceFailure("save", fmt.Errorf("commit bundle: %w", err))
	}
	s.mu.Unlock()

	if trash != "" {
		if err := os.RemoveAll(trash); err != nil {
			s.log.Warn().Err(err).Str("id", b.ID).Msg("failed to remove replaced bundle")
		}
	}
	s.log.Debug().Str("id", b.ID).Bool("replaced", trash != "").Msg("bundle saved")
	return nil
}

// Create commits the bundle only when no directory exists for its id
func (s *Local) Create(_ context.Context, b *model.Bundle) error {
	if err := checkBundle(b); err != nil {
		return err
	}
	tmp, err := s.stage(b)
	if err != nil {
		return model.NewPersistenceFailure("create", err)
	}

	final := s.dir(b.ID)

	s.mu.Lock()
	_, statErr := os.Stat(final)
	switch {
	case statErr == nil:
		s.mu.Unlock()
		_ = os.RemoveAll(tmp)
		return model.NewDuplicateInvoice(b.ID)
	case !errors.Is(statErr, fs.ErrNotExist):
		s.mu.Unlock()
		_ = os.RemoveAll(tmp)
		return model.NewPersistenceFailure("create", statErr)
	}
	err = os.Rename(tmp, final)
	s.mu.Unlock()

	if err != nil {
		_ = os.RemoveAll(tmp)
		return model.NewPersistenceFailure("create", fmt.Errorf("commit bundle: %w", err))
	}
	s.log.Debug().Str("id", b.ID).Msg("bundle created")
	return nil
}

// Get reads all three artifacts under the read lock
func (s *Local) Get(_ context.Context, id string) (*model.Bundle, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	dir := s.dir(id)
	pdf, err := s.read(id, filepath.Join(dir, PDFName))
	if err != nil {
		return nil, err
	}
	xml, err := s.read(id, filepath.Join(dir, XMLName))
	if err != nil {
		return nil, err
	}
	raw, err := s.read(id, filepath.Join(dir, MetadataName))
	if err != nil {
		return nil, err
	}
	md, err := decodeMetadata(raw)
	if err != nil {
		return nil, model.NewPersistenceFailure("get", err)
	}
	return &model.Bundle{ID: id, PDF: pdf, XML: string(xml), Metadata: *md}, nil
}

// Metadata reads only the metadata record
func (s *Local) Metadata(_ context.Context, id string) (*model.Metadata, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	raw, err := s.read(id, filepath.Join(s.dir(id), MetadataName))
	if err != nil {
		return nil, err
	}
	md, err := decodeMetadata(raw)
	if err != nil {
		return nil, model.NewPersistenceFailure("metadata", err)
	}
	return md, nil
}

// List returns every readable metadata record. Unreadable bundles are logged and skipped.
func (s *Local) List(_ context.Context) ([]model.Metadata, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, model.NewPersistenceFailure("list", err)
	}
	out := make([]model.Metadata, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		raw, err := os.ReadFile(filepath.Join(s.root, e.Name(), MetadataName))
		if err != nil {
			s.log.Warn().Err(err).Str("id", e.Name()).Msg("skipping bundle without metadata")
			continue
		}
		md, err := decodeMetadata(raw)
		if err != nil {
			s.log.Warn().Err(err).Str("id", e.Name()).Msg("skipping bundle with corrupt metadata")
			continue
		}
		out = append(out, *md)
	}
	return out, nil
}

// Delete detaches the bundle directory with one rename, then removes it
func (s *Local) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	trash := filepath.Join(s.root, trashPrefix+uuid.NewString())

	s.mu.Lock()
	err := os.Rename(s.dir(id), trash)
	s.mu.Unlock()

	if errors.Is(err, fs.ErrNotExist) {
		return model.NewNotFound(id)
	}
	if err != nil {
		return model.NewPersistenceFailure("delete", err)
	}
	if err := os.RemoveAll(trash); err != nil {
		s.log.Warn().Err(err).Str("id", id).Msg("failed to remove deleted bundle")
	}
	s.log.Debug().Str("id", id).Msg("bundle deleted")
	return nil
}

// Close is a no-op for the filesystem
func (s *Local) Close() error { return nil }

func (s *Local) read(id, path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, model.NewNotFound(id)
	}
	if err != nil {
		return nil, model.NewPersistenceFailure("read", err)
	}
	return data, nil
}
