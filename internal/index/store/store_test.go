package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/kitchenframe/recipesearch/internal/corpus"
	"github.com/kitchenframe/recipesearch/internal/index"
	pkgerrors "github.com/kitchenframe/recipesearch/pkg/errors"
)

func testDocs() []corpus.Document {
	return []corpus.Document{
		{ID: 1, Text: "chicken soup with rice"},
		{ID: 2, Text: "chicken curry with rice"},
		{ID: 3, Text: "vegetable soup"},
	}
}

func buildIndex(t *testing.T, docs []corpus.Document, fingerprint string) *index.Index {
	t.Helper()
	idx, err := index.Build(context.Background(), docs, fingerprint, 1)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	st := New(path)
	idx := buildIndex(t, testDocs(), "fp-1")

	if err := st.Save(idx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Atomic write must not leave the temp file behind.
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file still present after save")
	}

	loaded, err := st.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !reflect.DeepEqual(idx, loaded) {
		t.Errorf("round trip mismatch:\nsaved:  %+v\nloaded: %+v", idx, loaded)
	}
}

func TestLoadMissing(t *testing.T) {
	st := New(filepath.Join(t.TempDir(), "absent.bin"))
	_, err := st.Load()
	if err == nil {
		t.Fatal("Load of missing file succeeded")
	}
	if errors.Is(err, pkgerrors.ErrIndexCorrupt) {
		t.Errorf("missing file reported as corrupt: %v", err)
	}
}

func TestLoadCorrupt(t *testing.T) {
	tests := []struct {
		name    string
		content func(valid []byte) []byte
	}{
		{
			name:    "garbage",
			content: func([]byte) []byte { return []byte("not an index at all") },
		},
		{
			name: "bad magic",
			content: func(valid []byte) []byte {
				out := append([]byte{}, valid...)
				out[0] ^= 0xFF
				return out
			},
		},
		{
			name: "flipped payload byte",
			content: func(valid []byte) []byte {
				out := append([]byte{}, valid...)
				out[HeaderSize+3] ^= 0xFF
				return out
			},
		},
		{
			name: "truncated",
			content: func(valid []byte) []byte {
				return valid[:len(valid)/2]
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "index.bin")
			st := New(path)
			if err := st.Save(buildIndex(t, testDocs(), "fp")); err != nil {
				t.Fatalf("Save: %v", err)
			}
			valid, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("reading saved index: %v", err)
			}
			if err := os.WriteFile(path, tt.content(valid), 0644); err != nil {
				t.Fatalf("writing corrupt index: %v", err)
			}
			_, err = st.Load()
			if !errors.Is(err, pkgerrors.ErrIndexCorrupt) {
				t.Fatalf("got %v, want ErrIndexCorrupt", err)
			}
		})
	}
}

func TestLoadOrBuildFreshIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	st := New(path)
	docs := testDocs()
	fp := corpus.Fingerprint(docs)

	idx, outcome, err := st.LoadOrBuild(context.Background(), docs, fp, 1)
	if err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if outcome != OutcomeBuiltMissing {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeBuiltMissing)
	}
	if idx.Stats.DocCount != 3 {
		t.Errorf("DocCount = %d, want 3", idx.Stats.DocCount)
	}

	// Second call must load the persisted index, not rebuild.
	idx2, outcome, err := st.LoadOrBuild(context.Background(), docs, fp, 1)
	if err != nil {
		t.Fatalf("second LoadOrBuild: %v", err)
	}
	if outcome != OutcomeLoaded {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeLoaded)
	}
	if !reflect.DeepEqual(idx, idx2) {
		t.Error("loaded index differs from built index")
	}
}

func TestLoadOrBuildStaleCorpus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	st := New(path)
	docs := testDocs()

	if _, _, err := st.LoadOrBuild(context.Background(), docs, corpus.Fingerprint(docs), 1); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}

	// A new document changes the fingerprint and must force a rebuild that
	// makes the document retrievable.
	docs = append(docs, corpus.Document{ID: 4, Text: "pineapple fried rice"})
	idx, outcome, err := st.LoadOrBuild(context.Background(), docs, corpus.Fingerprint(docs), 1)
	if err != nil {
		t.Fatalf("LoadOrBuild after corpus change: %v", err)
	}
	if outcome != OutcomeBuiltStale {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeBuiltStale)
	}
	if idx.DocFreq("pineapple") != 1 {
		t.Errorf("new document not indexed after rebuild")
	}
}

func TestLoadOrBuildRecoversFromCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index.bin")
	st := New(path)
	docs := testDocs()
	fp := corpus.Fingerprint(docs)

	if _, _, err := st.LoadOrBuild(context.Background(), docs, fp, 1); err != nil {
		t.Fatalf("LoadOrBuild: %v", err)
	}
	if err := os.WriteFile(path, []byte("scrambled"), 0644); err != nil {
		t.Fatalf("corrupting index file: %v", err)
	}

	idx, outcome, err := st.LoadOrBuild(context.Background(), docs, fp, 1)
	if err != nil {
		t.Fatalf("LoadOrBuild with corrupt file: %v", err)
	}
	if outcome != OutcomeBuiltCorrupt {
		t.Errorf("outcome = %q, want %q", outcome, OutcomeBuiltCorrupt)
	}
	if idx.Stats.DocCount != 3 {
		t.Errorf("rebuilt index has %d documents, want 3", idx.Stats.DocCount)
	}
	// The recovery must also have repaired the file on disk.
	if _, err := st.Load(); err != nil {
		t.Errorf("index file not repaired after recovery: %v", err)
	}
}
