package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Indexer is told about every episode that reached disk.
type Indexer interface {
	Index(ctx context.Context, ep *Episode, path string) error
}

// Result reports the outcome of one save.
type Result struct {
	ID     string
	Path   string
	Object string
	Frames int
	Err    error
}

// Writer serializes episodes in background goroutines. Saves to the same
// path are ordered: a later save waits for the earlier one to finish.
type Writer struct {
	log     *zap.Logger
	indexer Indexer

	mu      sync.Mutex
	pending map[string]chan struct{}
	g       *errgroup.Group
	results chan Result
}

// NewWriter creates a writer. indexer may be nil.
func NewWriter(indexer Indexer, logger *zap.Logger) *Writer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		log:     logger,
		indexer: indexer,
		pending: make(map[string]chan struct{}),
		g:       new(errgroup.Group),
		results: make(chan Result, 16),
	}
}

// Results delivers completed saves. Results are dropped when nobody reads.
func (w *Writer) Results() <-chan Result {
	return w.results
}

// Save writes ep to path in the background and returns immediately. The
// writer takes ownership of ep. ctx only bounds the index call.
func (w *Writer) Save(ctx context.Context, ep *Episode, path string) {
	done := make(chan struct{})

	w.mu.Lock()
	prev := w.pending[path]
	w.pending[path] = done
	g := w.g
	w.mu.Unlock()

	g.Go(func() error {
		defer func() {
			w.mu.Lock()
			if w.pending[path] == done {
				delete(w.pending, path)
			}
			w.mu.Unlock()
			close(done)
		}()
		if prev != nil {
			<-prev
		}

		err := writeEpisode(ep, path)
		if err == nil && w.indexer != nil {
			if ierr := w.indexer.Index(ctx, ep, path); ierr != nil {
				w.log.Warn("episode saved but not indexed", zap.String("path", path), zap.Error(ierr))
			}
		}
		if err != nil {
			w.log.Error("save episode", zap.String("path", path), zap.Error(err))
		} else {
			w.log.Info("episode saved", zap.String("path", path), zap.String("id", ep.ID), zap.Int("frames", len(ep.Frames)))
		}

		select {
		case w.results <- Result{ID: ep.ID, Path: path, Object: ep.Object, Frames: len(ep.Frames), Err: err}:
		default:
		}
		return err
	})
}

// Wait blocks until every save queued so far finished and returns the
// first error among them. Saves queued afterwards start a fresh group.
func (w *Writer) Wait() error {
	w.mu.Lock()
	g := w.g
	w.g = new(errgroup.Group)
	w.mu.Unlock()
	return g.Wait()
}

func writeEpisode(ep *Episode, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create save dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".episode-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := json.NewEncoder(tmp).Encode(ep); err != nil {
		tmp.Close()
		return fmt.Errorf("encode episode: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename episode: %w", err)
	}
	return nil
}

// ReadEpisode loads a saved episode.
func ReadEpisode(path string) (*Episode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read episode: %w", err)
	}
	var ep Episode
	if err := json.Unmarshal(data, &ep); err != nil {
		return nil, fmt.Errorf("parse episode: %w", err)
	}
	return &ep, nil
}
