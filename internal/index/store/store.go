// Package store persists the built index to a single on-disk blob and decides,
// via the corpus fingerprint, whether a cached index can be served or must be
// rebuilt.
//
// The file layout is a fixed binary header (magic, format version, payload
// length), a JSON payload, and a CRC32 footer over the payload. The format is
// internal and version-gated, not cross-version stable.
package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/index"
	pkgerrors "github.com/kitchenframe/recipesearch/pkg/errors"
	"github.com/kitchenframe/recipesearch/pkg/logger"
)

const (
	// MagicBytes identifies a valid recipe index file ("RCPI").
	MagicBytes    uint32 = 0x52435049
	FormatVersion uint32 = 1
	HeaderSize    int    = 16
	FooterSize    int    = 4
)

// Outcome reports how LoadOrBuild obtained its index.
type Outcome string

const (
	OutcomeLoaded       Outcome = "loaded"
	OutcomeBuiltMissing Outcome = "missing"
	OutcomeBuiltStale   Outcome = "stale"
	OutcomeBuiltCorrupt Outcome = "corrupt"
	OutcomeBuiltForced  Outcome = "forced"
)

// Store reads and writes the index blob at a fixed path.
type Store struct {
	path   string
	logger *slog.Logger
}

// New creates a Store for the given index path.
func New(path string) *Store {
	return &Store{
		path:   path,
		logger: logger.WithComponent("index-store"),
	}
}

// Path returns the index file path.
func (s *Store) Path() string {
	return s.path
}

// Save atomically serialises the index: it writes header, payload, and
// checksum to a temporary file and renames it over the destination, so a
// partially written file is never observable as a valid index.
func (s *Store) Save(idx *index.Index) error {
	payload, err := json.Marshal(idx)
	if err != nil {
		return fmt.Errorf("marshaling index: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}
	tmpPath := s.path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer func() {
		f.Close()
		os.Remove(tmpPath)
	}()

	header := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(header[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(header[4:8], FormatVersion)
	binary.LittleEndian.PutUint64(header[8:16], uint64(len(payload)))
	if _, err := f.Write(header); err != nil {
		return fmt.Errorf("writing index header: %w", err)
	}
	if _, err := f.Write(payload); err != nil {
		return fmt.Errorf("writing index payload: %w", err)
	}
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer, crc32.ChecksumIEEE(payload))
	if _, err := f.Write(footer); err != nil {
		return fmt.Errorf("writing index checksum: %w", err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing index file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("closing index file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}

// Load deserialises the index blob, rejecting unreadable or structurally
// invalid files with ErrIndexCorrupt. A missing file is reported with
// fs.ErrNotExist, not as corruption.
func (s *Store) Load() (*index.Index, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("index file %s: %w", s.path, fs.ErrNotExist)
		}
		return nil, fmt.Errorf("reading index file %s: %w", s.path, err)
	}
	if len(data) < HeaderSize+FooterSize {
		return nil, fmt.Errorf("%w: file %s truncated (%d bytes)", pkgerrors.ErrIndexCorrupt, s.path, len(data))
	}
	if magic := binary.LittleEndian.Uint32(data[0:4]); magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", pkgerrors.ErrIndexCorrupt, magic)
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", pkgerrors.ErrIndexCorrupt, version)
	}
	payloadLen := binary.LittleEndian.Uint64(data[8:16])
	if uint64(len(data)) != uint64(HeaderSize+FooterSize)+payloadLen {
		return nil, fmt.Errorf("%w: payload length %d does not match file size %d", pkgerrors.ErrIndexCorrupt, payloadLen, len(data))
	}
	payload := data[HeaderSize : HeaderSize+int(payloadLen)]
	checksum := binary.LittleEndian.Uint32(data[len(data)-FooterSize:])
	if got := crc32.ChecksumIEEE(payload); got != checksum {
		return nil, fmt.Errorf("%w: checksum mismatch (stored %08x, computed %08x)", pkgerrors.ErrIndexCorrupt, checksum, got)
	}
	var idx index.Index
	if err := json.Unmarshal(payload, &idx); err != nil {
		return nil, fmt.Errorf("%w: decoding payload: %v", pkgerrors.ErrIndexCorrupt, err)
	}
	if err := idx.Validate(); err != nil {
		return nil, err
	}
	return &idx, nil
}

// LoadOrBuild serves the persisted index when its stored fingerprint matches
// the current corpus fingerprint, and otherwise rebuilds from the documents
// and persists the result before returning it. A corrupt persisted index is
// recovered by rebuilding; that path is logged but does not fail the call
// unless the rebuild or save also fails.
func (s *Store) LoadOrBuild(ctx context.Context, docs []corpus.Document, fingerprint string, workers int) (*index.Index, Outcome, error) {
	outcome := OutcomeLoaded
	idx, err := s.Load()
	switch {
	case err == nil:
		if idx.Fingerprint == fingerprint {
			return idx, OutcomeLoaded, nil
		}
		outcome = OutcomeBuiltStale
		s.logger.Info("persisted index is stale, rebuilding",
			"path", s.path,
			"stored_fingerprint", idx.Fingerprint,
			"corpus_fingerprint", fingerprint,
		)
	case errors.Is(err, fs.ErrNotExist):
		outcome = OutcomeBuiltMissing
		s.logger.Info("no persisted index, building", "path", s.path)
	case errors.Is(err, pkgerrors.ErrIndexCorrupt):
		outcome = OutcomeBuiltCorrupt
		s.logger.Warn("persisted index is corrupt, rebuilding", "path", s.path, "error", err)
	default:
		return nil, "", fmt.Errorf("loading index: %w", err)
	}

	idx, err = index.Build(ctx, docs, fingerprint, workers)
	if err != nil {
		return nil, outcome, err
	}
	if err := s.Save(idx); err != nil {
		return nil, outcome, fmt.Errorf("persisting rebuilt index: %w", err)
	}
	return idx, outcome, nil
}
