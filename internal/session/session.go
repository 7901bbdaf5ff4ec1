// Package session ties resolution, execution, classification and tracing
// into the loop callers run for every block: resolve inputs, build, check
// the snapshots are still current, submit, record, classify.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/effects"
	"github.com/roach88/txblock/internal/engine"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/resolve"
	"github.com/roach88/txblock/internal/trace"
)

// Session executes blocks for one sender at a time and records every
// executed block. It is safe for concurrent use; the engine decides how
// concurrent submissions are ordered.
type Session struct {
	resolver   *resolve.Resolver
	engine     engine.Engine
	recorder   *trace.Recorder
	classifier *effects.Classifier
	store      resolve.Store
	logger     *slog.Logger

	mu     sync.RWMutex
	sender ir.Address
}

type config struct {
	sender      ir.Address
	logger      *slog.Logger
	classifyOpt []effects.Option
}

// Option configures a Session.
type Option func(*config)

// WithSender sets the initial sender.
func WithSender(a ir.Address) Option {
	return func(c *config) { c.sender = a }
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithClassifierOptions passes options to the effect classifier.
func WithClassifierOptions(opts ...effects.Option) Option {
	return func(c *config) { c.classifyOpt = append(c.classifyOpt, opts...) }
}

// New returns a session reading snapshots from store, executing on eng
// and recording into rec.
func New(store resolve.Store, eng engine.Engine, rec *trace.Recorder, opts ...Option) *Session {
	cfg := &config{logger: slog.Default()}
	for _, opt := range opts {
		opt(cfg)
	}
	classifyOpts := append([]effects.Option{effects.WithLogger(cfg.logger)}, cfg.classifyOpt...)
	return &Session{
		resolver:   resolve.New(store),
		engine:     eng,
		recorder:   rec,
		classifier: effects.New(store, classifyOpts...),
		store:      store,
		logger:     cfg.logger,
		sender:     cfg.sender,
	}
}

// SetSender changes the sender of subsequent Execute calls.
func (s *Session) SetSender(a ir.Address) {
	s.mu.Lock()
	s.sender = a
	s.mu.Unlock()
}

func (s *Session) Sender() ir.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sender
}

// Resolve returns the latest snapshot of id.
func (s *Session) Resolve(id ir.ObjectID) (ir.ObjectHandle, error) {
	return s.resolver.Resolve(id)
}

// Resolver exposes the session's resolver.
func (s *Session) Resolver() *resolve.Resolver {
	return s.resolver
}

// Recorder exposes the session's trace recorder.
func (s *Session) Recorder() *trace.Recorder {
	return s.recorder
}

// Builder returns a block builder that rejects MutRef and Shared inputs
// older than the store's latest version.
func (s *Session) Builder() *block.Builder {
	return block.NewBuilder(block.WithVersionSource(s.resolver))
}

// Execute submits b as the current sender.
func (s *Session) Execute(ctx context.Context, flow, label string, b *block.Block) (ir.ExecutionResult, error) {
	return s.ExecuteAs(ctx, s.Sender(), flow, label, b)
}

// ExecuteAs checks that every object input of b is still current, submits
// it on behalf of sender and records the outcome. Resolution errors are
// returned before the engine is called and nothing is recorded. Execution
// failures are not errors: they come back in the result and are recorded
// like successes.
func (s *Session) ExecuteAs(ctx context.Context, sender ir.Address, flow, label string, b *block.Block) (ir.ExecutionResult, error) {
	if err := s.resolver.CheckFresh(b); err != nil {
		s.logger.Warn("block rejected before submission", "label", label, "error", err)
		return ir.ExecutionResult{}, fmt.Errorf("%s: %w", label, err)
	}

	res, err := s.engine.Submit(ctx, b, sender)
	if err != nil {
		return ir.ExecutionResult{}, fmt.Errorf("%s: submit: %w", label, err)
	}

	entry := trace.NewEntry(label, sender, b, res, s.store)
	entry.Flow = flow
	s.recorder.Record(entry)

	if res.Success {
		s.logger.Debug("block executed", "label", label, "flow", flow, "created", len(res.Created), "gas", res.GasUsed)
	} else {
		s.logger.Info("block failed", "label", label, "flow", flow, "error", res.Error)
	}
	return res, nil
}

// Classify picks one created object out of res.
func (s *Session) Classify(res ir.ExecutionResult, hint effects.Hint) (ir.ObjectID, error) {
	return s.classifier.Classify(res, hint)
}

// ClassifyAll picks a distinct created object for each hint.
func (s *Session) ClassifyAll(res ir.ExecutionResult, hints ...effects.Hint) ([]ir.ObjectID, error) {
	return s.classifier.ClassifyAll(res, hints...)
}
