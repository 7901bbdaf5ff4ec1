package trace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/roach88/txblock/internal/ir"
)

// Sink receives drained documents.
type Sink interface {
	WriteDocument(ctx context.Context, doc Document) error
}

// Recorder accumulates entries in insertion order. All methods are safe for
// concurrent use; racing Record calls are ordered arbitrarily but each entry
// is kept exactly once.
type Recorder struct {
	mu       sync.Mutex
	entries  []Entry
	protocol string
	version  string
	now      func() time.Time
	logger   *slog.Logger
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithProtocol sets the protocol name written into documents.
func WithProtocol(name string) Option {
	return func(r *Recorder) { r.protocol = name }
}

// WithVersion sets the version written into documents. Defaults to
// ir.ToolVersion.
func WithVersion(v string) Option {
	return func(r *Recorder) { r.version = v }
}

// WithNow sets the time source used for document timestamps.
func WithNow(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithLogger sets the logger used by Flush.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) { r.logger = l }
}

// NewRecorder returns an empty recorder. Without options it writes
// DefaultProtocol documents stamped with the wall clock.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		protocol: DefaultProtocol,
		version:  ir.ToolVersion,
		now:      time.Now,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record appends an entry.
func (r *Recorder) Record(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	r.mu.Unlock()
}

// Len returns the number of entries not yet drained.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

// Entries returns a snapshot of the entries not yet drained.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.entries)
}

// Document wraps the current entries without draining them.
func (r *Recorder) Document() Document {
	return r.document(r.Entries())
}

func (r *Recorder) document(entries []Entry) Document {
	if entries == nil {
		entries = []Entry{}
	}
	return Document{
		Protocol:  r.protocol,
		Version:   r.version,
		Timestamp: fmt.Sprintf("%ds", r.now().Unix()),
		Traces:    entries,
	}
}

// DrainTo writes every accumulated entry to sink as one document and
// clears the log. With nothing accumulated it does nothing and returns nil,
// so repeated calls never write the same entry twice. If the sink rejects
// the document outright the entries are kept, ahead of anything recorded
// meanwhile. A *PartialDeliveryError means the document already reached
// some sink, so the entries are dropped rather than delivered again.
func (r *Recorder) DrainTo(ctx context.Context, sink Sink) error {
	r.mu.Lock()
	taken := r.entries
	r.entries = nil
	r.mu.Unlock()

	if len(taken) == 0 {
		return nil
	}
	err := sink.WriteDocument(ctx, r.document(taken))
	if err == nil {
		return nil
	}
	var partial *PartialDeliveryError
	if !errors.As(err, &partial) {
		r.mu.Lock()
		r.entries = append(taken, r.entries...)
		r.mu.Unlock()
	}
	return fmt.Errorf("drain %d entries: %w", len(taken), err)
}

// Flush drains to sink and logs a failure. The error is returned so the
// caller can report it; persistence of traces never aborts the caller.
func (r *Recorder) Flush(ctx context.Context, sink Sink) error {
	n := r.Len()
	if err := r.DrainTo(ctx, sink); err != nil {
		r.logger.Warn("trace flush failed", "entries", n, "error", err)
		return err
	}
	if n > 0 {
		r.logger.Debug("trace flushed", "entries", n)
	}
	return nil
}
