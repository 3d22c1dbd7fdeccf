// Package ingest feeds the sample corpus: it hashes files from a drop
// directory and writes their records with analyzed == false, leaving all
// similarity work to the compare analytic.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/glaslos/ssdeep"

	"github.com/halcyonsec/simdex/internal/sample"
	"github.com/halcyonsec/simdex/internal/store"
)

// Worker ingests files into the sample store.
type Worker struct {
	store       store.Client
	deleteAfter bool
	log         *slog.Logger
}

// Option configures a Worker.
type Option func(*Worker)

// WithDeleteAfter removes files from the drop directory once their
// record is stored.
func WithDeleteAfter(enabled bool) Option {
	return func(w *Worker) {
		w.deleteAfter = enabled
	}
}

// WithLogger sets the worker logger. Defaults to slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(w *Worker) {
		w.log = l
	}
}

// NewWorker creates an ingest worker over the given store.
func NewWorker(client store.Client, opts ...Option) *Worker {
	w := &Worker{
		store: client,
		log:   slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// IngestDir walks dir recursively and ingests every regular file,
// skipping hidden directories. Returns the number of new samples
// stored.
func (w *Worker) IngestDir(ctx context.Context, dir string) (int, error) {
	count := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		stored, err := w.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		if stored {
			count++
		}
		return nil
	})
	if err != nil {
		return count, fmt.Errorf("ingest %s: %w", dir, err)
	}

	w.log.Info("ingest_finished", slog.String("dir", dir), slog.Int("stored", count))
	return count, nil
}

// IngestFile hashes one file and stores its record. Files that already
// have a record (same content hash) and files too small to fuzzy-hash
// are skipped without error. Returns whether a new record was stored.
func (w *Worker) IngestFile(ctx context.Context, path string) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return false, fmt.Errorf("read %s: %w", path, err)
	}

	sum := sha256.Sum256(data)
	id := hex.EncodeToString(sum[:])

	_, err = w.store.Get(ctx, id)
	switch {
	case err == nil:
		w.log.Debug("sample_exists", slog.String("path", path), slog.String("sha256", id))
		return false, w.cleanup(path)
	case !errors.Is(err, store.ErrNotFound):
		return false, err
	}

	fuzzyHash, err := ssdeep.FuzzyBytes(data)
	if err != nil {
		// Typically the file is below ssdeep's minimum input size.
		w.log.Warn("fuzzy_hash_skipped",
			slog.String("path", path),
			slog.String("error", err.Error()))
		return false, nil
	}

	s, err := sample.Parse(id, fuzzyHash)
	if err != nil {
		return false, fmt.Errorf("parse fuzzy hash for %s: %w", path, err)
	}
	if err := w.store.Put(ctx, s); err != nil {
		return false, fmt.Errorf("store sample for %s: %w", path, err)
	}

	w.log.Info("sample_ingested",
		slog.String("path", path),
		slog.String("sha256", id),
		slog.Int("chunk_size", s.Fuzzy.ChunkSize))
	return true, w.cleanup(path)
}

func (w *Worker) cleanup(path string) error {
	if !w.deleteAfter {
		return nil
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove ingested file %s: %w", path, err)
	}
	return nil
}
