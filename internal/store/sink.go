package store

import (
	"context"
	"log/slog"

	"github.com/roach88/txblock/internal/trace"
)

// Sink stores each drained document as a new run.
type Sink struct {
	store  *Store
	ids    trace.IDGenerator
	logger *slog.Logger
	last   string
}

// NewSink writes to s, naming runs with ids. A nil generator uses UUIDv7.
func NewSink(s *Store, ids trace.IDGenerator, logger *slog.Logger) *Sink {
	if ids == nil {
		ids = trace.UUIDv7Generator{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{store: s, ids: ids, logger: logger}
}

func (k *Sink) WriteDocument(ctx context.Context, doc trace.Document) error {
	runID := k.ids.Generate()
	if err := k.store.WriteRun(ctx, runID, doc); err != nil {
		return err
	}
	k.last = runID
	k.logger.Info("trace stored", "run", runID, "entries", len(doc.Traces))
	return nil
}

// LastRun returns the id of the most recent run this sink wrote.
func (k *Sink) LastRun() string {
	return k.last
}
