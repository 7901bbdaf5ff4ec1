package trace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
)

// FileSink writes each drained document to Path, replacing what was there.
type FileSink struct {
	Path string
}

func (s FileSink) WriteDocument(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.Path, data, 0o644); err != nil {
		return fmt.Errorf("write trace file: %w", err)
	}
	return nil
}

// WriterSink streams each document to W.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

func (s *WriterSink) WriteDocument(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(doc)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.W.Write(data); err != nil {
		return fmt.Errorf("write trace: %w", err)
	}
	return nil
}

// Marshal renders a document as indented JSON with a trailing newline.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("marshal trace: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses a document. Unknown fields are rejected.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode trace: %w", err)
	}
	if doc.Traces == nil {
		doc.Traces = []Entry{}
	}
	return doc, nil
}

// ReadDocument parses a trace file written by FileSink.
func ReadDocument(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return Document{}, fmt.Errorf("read trace: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// MemorySink keeps every document it receives.
type MemorySink struct {
	mu   sync.Mutex
	docs []Document
}

func (s *MemorySink) WriteDocument(ctx context.Context, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.docs = append(s.docs, doc)
	s.mu.Unlock()
	return nil
}

// Documents returns the received documents in order.
func (s *MemorySink) Documents() []Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.docs)
}

// Last returns the most recent document, if any.
func (s *MemorySink) Last() (Document, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.docs) == 0 {
		return Document{}, false
	}
	return s.docs[len(s.docs)-1], true
}

// Tee writes each document to every sink in order. All sinks are tried.
// When some sinks fail after others accepted the document the error is a
// *PartialDeliveryError.
func Tee(sinks ...Sink) Sink {
	return teeSink(sinks)
}

// PartialDeliveryError reports a document that reached some sinks of a Tee
// but not all of them. Retrying it would duplicate it in the sinks that
// already accepted it.
type PartialDeliveryError struct {
	Delivered int
	Failed    int
	Err       error
}

func (e *PartialDeliveryError) Error() string {
	return fmt.Sprintf("delivered to %d of %d sinks: %v", e.Delivered, e.Delivered+e.Failed, e.Err)
}

func (e *PartialDeliveryError) Unwrap() error { return e.Err }

type teeSink []Sink

func (t teeSink) WriteDocument(ctx context.Context, doc Document) error {
	var errs []error
	for _, s := range t {
		if err := s.WriteDocument(ctx, doc); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	err := errors.Join(errs...)
	if delivered := len(t) - len(errs); delivered > 0 {
		return &PartialDeliveryError{Delivered: delivered, Failed: len(errs), Err: err}
	}
	return err
}
