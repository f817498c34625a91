package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	type doc struct {
		Name  string  `json:"name"`
		Value float64 `json:"value"`
	}
	in := doc{Name: "weights", Value: 1.25}
	if err := s.Set(ctx, KeyWeights, in); err != nil {
		t.Fatal(err)
	}

	var out doc
	if err := s.Get(ctx, KeyWeights, &out); err != nil {
		t.Fatal(err)
	}
	if out != in {
		t.Errorf("round trip: got %+v, want %+v", out, in)
	}
}

func TestFileStoreMissingKey(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	if err := s.Get(context.Background(), "never_written", &v); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestFileStoreOverwrite(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	if err := s.Set(ctx, KeyParameters, map[string]int{"a": 1}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set(ctx, KeyParameters, map[string]int{"a": 2}); err != nil {
		t.Fatal(err)
	}

	var v map[string]int
	if err := s.Get(ctx, KeyParameters, &v); err != nil {
		t.Fatal(err)
	}
	if v["a"] != 2 {
		t.Errorf("got %v, want the second write", v)
	}

	// No temp files left behind.
	if _, err := os.Stat(filepath.Join(dir, KeyParameters+".json.tmp")); !errors.Is(err, os.ErrNotExist) {
		t.Error("temp file left after rename")
	}
}

func TestFileStoreCorruptDocument(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}
	var v map[string]any
	err = s.Get(context.Background(), "broken", &v)
	var perr *PersistenceError
	if !errors.As(err, &perr) {
		t.Fatalf("want PersistenceError, got %v", err)
	}
}
