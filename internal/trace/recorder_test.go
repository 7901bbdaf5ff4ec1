package trace

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/block"
	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/pure"
)

var fixedNow = func() time.Time { return time.Unix(1_700_000_000, 0) }

type memorySink struct {
	mu   sync.Mutex
	docs []Document
	err  error
}

func (s *memorySink) WriteDocument(_ context.Context, doc Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.docs = append(s.docs, doc)
	return nil
}

func depositBlock(t *testing.T) *block.Block {
	t.Helper()
	b := block.NewBuilder()
	b.Invoke(pkg, "fund", "deposit", nil, []ir.Argument{b.Pure(pure.U64(5000))}, 0)
	blk, err := b.Build()
	require.NoError(t, err)
	return blk
}

func abortResult() ir.ExecutionResult {
	return ir.FailedResult(&ir.ExecutionError{
		Kind:      ir.ErrKindAbort,
		Command:   0,
		Message:   "0xcafe::fund::deposit",
		AbortCode: 7,
	})
}

func sampleRecorder(t *testing.T) *Recorder {
	t.Helper()
	r := NewRecorder(WithNow(fixedNow))
	first := NewEntry("register", alice, registerBlock(t), registerResult(), registerStore(t))
	first.Flow = "flow-1"
	r.Record(first)
	r.Record(NewEntry("over-deposit", alice, depositBlock(t), abortResult(), nil))
	return r
}

func TestRecorder_Golden(t *testing.T) {
	data, err := Marshal(sampleRecorder(t).Document())
	require.NoError(t, err)

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "two_entries", data)
}

func TestDocument_RoundTrip(t *testing.T) {
	doc := sampleRecorder(t).Document()

	data, err := Marshal(doc)
	require.NoError(t, err)
	parsed, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)

	assert.Equal(t, doc, parsed)
}

func TestFileSink_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "traces.json")
	r := sampleRecorder(t)
	want := r.Document()

	require.NoError(t, r.DrainTo(context.Background(), FileSink{Path: path}))

	got, err := ReadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(bytes.NewBufferString(`{"protocol":"p","version":"1","timestamp":"0s","traces":[],"extra":1}`))
	require.Error(t, err)
}

func TestReadDocument_Missing(t *testing.T) {
	_, err := ReadDocument(filepath.Join(t.TempDir(), "absent.json"))
	require.Error(t, err)
}

func TestRecorder_DrainOnce(t *testing.T) {
	r := sampleRecorder(t)
	sink := &memorySink{}

	require.NoError(t, r.DrainTo(context.Background(), sink))
	require.NoError(t, r.DrainTo(context.Background(), sink))

	require.Len(t, sink.docs, 1, "second drain of an empty log writes nothing")
	assert.Len(t, sink.docs[0].Traces, 2)
	assert.Equal(t, "1700000000s", sink.docs[0].Timestamp)
	assert.Equal(t, DefaultProtocol, sink.docs[0].Protocol)
	assert.Equal(t, ir.ToolVersion, sink.docs[0].Version)
	assert.Zero(t, r.Len())
}

func TestRecorder_DrainFailureKeepsEntries(t *testing.T) {
	r := sampleRecorder(t)
	failing := &memorySink{err: errors.New("disk full")}

	err := r.DrainTo(context.Background(), failing)
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	r.Record(Entry{Label: "later"})
	entries := r.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "register", entries[0].Label)
	assert.Equal(t, "later", entries[2].Label)

	ok := &memorySink{}
	require.NoError(t, r.DrainTo(context.Background(), ok))
	require.Len(t, ok.docs, 1)
	assert.Len(t, ok.docs[0].Traces, 3)
}

func TestRecorder_FlushLogsInsteadOfFailing(t *testing.T) {
	var logs bytes.Buffer
	r := NewRecorder(WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
	r.Record(Entry{Label: "one"})

	err := r.Flush(context.Background(), &memorySink{err: errors.New("disk full")})
	require.Error(t, err)

	assert.Contains(t, logs.String(), "trace flush failed")
	assert.Contains(t, logs.String(), "disk full")
	assert.Equal(t, 1, r.Len())
}

func TestRecorder_ConcurrentRecord(t *testing.T) {
	r := NewRecorder()
	const workers, perWorker = 16, 50

	var wg sync.WaitGroup
	for w := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range perWorker {
				r.Record(Entry{Label: fmt.Sprintf("%d-%d", w, i)})
			}
		}()
	}
	wg.Wait()

	entries := r.Entries()
	require.Len(t, entries, workers*perWorker)
	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		require.False(t, seen[e.Label], "duplicate %s", e.Label)
		seen[e.Label] = true
	}
}

func TestRecorder_ConcurrentRecordAndDrain(t *testing.T) {
	r := NewRecorder()
	sink := &memorySink{}
	const total = 500

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := range total {
			r.Record(Entry{Label: fmt.Sprintf("e%d", i)})
		}
	}()
	go func() {
		defer wg.Done()
		for range 50 {
			assert.NoError(t, r.DrainTo(context.Background(), sink))
		}
	}()
	wg.Wait()
	require.NoError(t, r.DrainTo(context.Background(), sink))

	var count int
	seen := make(map[string]bool)
	for _, doc := range sink.docs {
		for _, e := range doc.Traces {
			require.False(t, seen[e.Label], "entry %s drained twice", e.Label)
			seen[e.Label] = true
			count++
		}
	}
	assert.Equal(t, total, count)
}

func TestWriterSink(t *testing.T) {
	var buf bytes.Buffer
	r := sampleRecorder(t)
	require.NoError(t, r.DrainTo(context.Background(), &WriterSink{W: &buf}))

	doc, err := Decode(&buf)
	require.NoError(t, err)
	assert.Len(t, doc.Traces, 2)
}

func TestDocument_Summarize(t *testing.T) {
	s := sampleRecorder(t).Document().Summarize()

	assert.Equal(t, Summary{Entries: 2, Succeeded: 1, Failed: 1, GasUsed: 13300, Flows: []string{"flow-1"}}, s)
}

func TestSinkHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := sampleRecorder(t)

	err := r.DrainTo(ctx, FileSink{Path: filepath.Join(t.TempDir(), "x.json")})
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 2, r.Len())
}

func TestTee_WritesEverySink(t *testing.T) {
	r := sampleRecorder(t)
	mem := &MemorySink{}
	failing := &memorySink{err: errors.New("disk full")}
	last := &memorySink{}

	err := r.DrainTo(context.Background(), Tee(mem, failing, last))
	require.Error(t, err)
	assert.ErrorContains(t, err, "disk full")

	var partial *PartialDeliveryError
	require.ErrorAs(t, err, &partial)
	assert.Equal(t, 2, partial.Delivered)
	assert.Equal(t, 1, partial.Failed)

	// Sinks after a failing one still receive the document.
	require.Len(t, last.docs, 1)
	doc, ok := mem.Last()
	require.True(t, ok)
	assert.Len(t, doc.Traces, 2)

	// Entries that reached a sink are not kept for another drain.
	assert.Zero(t, r.Len())
}

func TestTee_RetryAfterPartialFailureDoesNotDuplicate(t *testing.T) {
	r := NewRecorder()
	r.Record(Entry{Label: "only"})
	mem := &MemorySink{}
	flaky := &memorySink{err: errors.New("disk full")}
	tee := Tee(mem, flaky)

	require.Error(t, r.DrainTo(context.Background(), tee))

	flaky.mu.Lock()
	flaky.err = nil
	flaky.mu.Unlock()
	require.NoError(t, r.DrainTo(context.Background(), tee))

	require.Len(t, mem.Documents(), 1)
	assert.Empty(t, flaky.docs)
}

func TestTee_TotalFailureKeepsEntries(t *testing.T) {
	r := sampleRecorder(t)
	tee := Tee(&memorySink{err: errors.New("a")}, &memorySink{err: errors.New("b")})

	err := r.DrainTo(context.Background(), tee)
	require.Error(t, err)
	var partial *PartialDeliveryError
	assert.False(t, errors.As(err, &partial))
	assert.Equal(t, 2, r.Len())

	mem := &MemorySink{}
	require.NoError(t, r.DrainTo(context.Background(), mem))
	assert.Len(t, mem.Documents(), 1)
}

func TestMemorySink_Empty(t *testing.T) {
	var mem MemorySink
	_, ok := mem.Last()
	assert.False(t, ok)
	assert.Empty(t, mem.Documents())
}

func TestRecorder_WithVersion(t *testing.T) {
	r := NewRecorder(WithNow(fixedNow), WithProtocol("fund"), WithVersion("2.0.0"))
	doc := r.Document()
	assert.Equal(t, "fund", doc.Protocol)
	assert.Equal(t, "2.0.0", doc.Version)
	assert.Equal(t, "1700000000s", doc.Timestamp)
	assert.Empty(t, doc.Traces)

	assert.Equal(t, ir.ToolVersion, NewRecorder().Document().Version)
}
