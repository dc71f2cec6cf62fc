// Package corpus loads the recipe document collection that gets indexed. The
// canonical source is the processed recipes JSON file produced by the
// preprocessing step; a PostgreSQL-backed source is available for deployments
// that keep the processed corpus in a database.
package corpus

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	pkgerrors "github.com/kitchenframe/recipesearch/pkg/errors"
)

// Document is a single searchable recipe. Text is the normalised searchable
// string; Metadata is the full raw corpus entry, passed through opaquely to
// retrieval results. Documents are immutable after load.
type Document struct {
	ID       int64
	Text     string
	Metadata json.RawMessage
}

// Source yields the ordered document sequence to index.
type Source interface {
	Load(ctx context.Context) ([]Document, error)
}

// FileSource reads documents from a processed recipes JSON file: an array of
// objects each carrying at least "id" and "text".
type FileSource struct {
	path string
}

// NewFileSource creates a FileSource for the given path.
func NewFileSource(path string) *FileSource {
	return &FileSource{path: path}
}

// Load reads and validates the corpus file.
func (s *FileSource) Load(ctx context.Context) ([]Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: corpus file %s", pkgerrors.ErrCorpusNotFound, s.path)
		}
		return nil, fmt.Errorf("reading corpus file %s: %w", s.path, err)
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: corpus file %s is not a JSON array: %v", pkgerrors.ErrCorpusMalformed, s.path, err)
	}

	docs := make([]Document, 0, len(entries))
	for i, raw := range entries {
		var fields struct {
			ID   *int64  `json:"id"`
			Text *string `json:"text"`
		}
		if err := json.Unmarshal(raw, &fields); err != nil {
			return nil, fmt.Errorf("%w: entry %d: %v", pkgerrors.ErrCorpusMalformed, i, err)
		}
		if fields.ID == nil {
			return nil, fmt.Errorf("%w: entry %d: missing required field %q", pkgerrors.ErrCorpusMalformed, i, "id")
		}
		if fields.Text == nil {
			return nil, fmt.Errorf("%w: entry %d (id %d): missing required field %q", pkgerrors.ErrCorpusMalformed, i, *fields.ID, "text")
		}
		docs = append(docs, Document{
			ID:       *fields.ID,
			Text:     *fields.Text,
			Metadata: raw,
		})
	}
	if err := validate(docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// validate enforces document id uniqueness.
func validate(docs []Document) error {
	seen := make(map[int64]struct{}, len(docs))
	for _, d := range docs {
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("%w: duplicate document id %d", pkgerrors.ErrCorpusMalformed, d.ID)
		}
		seen[d.ID] = struct{}{}
	}
	return nil
}

// Fingerprint derives a content hash over the loaded documents. Each document
// is hashed individually and the per-document digests are sorted before the
// final hash, so reordering the same documents yields the same fingerprint
// while any content edit changes it.
func Fingerprint(docs []Document) string {
	digests := make([][sha256.Size]byte, 0, len(docs))
	for _, d := range docs {
		h := sha256.New()
		var idBuf [8]byte
		binary.LittleEndian.PutUint64(idBuf[:], uint64(d.ID))
		h.Write(idBuf[:])
		h.Write([]byte(d.Text))
		h.Write(d.Metadata)
		var digest [sha256.Size]byte
		h.Sum(digest[:0])
		digests = append(digests, digest)
	}
	sort.Slice(digests, func(i, j int) bool {
		for k := 0; k < sha256.Size; k++ {
			if digests[i][k] != digests[j][k] {
				return digests[i][k] < digests[j][k]
			}
		}
		return false
	})
	final := sha256.New()
	for _, d := range digests {
		final.Write(d[:])
	}
	return hex.EncodeToString(final.Sum(nil))
}
