package store

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/trace"
)

func createTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEntry(flow, label string, success bool, gas uint64) trace.Entry {
	out := trace.Outputs{
		Success:        success,
		GasUsed:        gas,
		CreatedObjects: []trace.CreatedObject{},
		MutatedObjects: []string{},
		Events:         []trace.Event{},
	}
	if success {
		out.CreatedObjects = append(out.CreatedObjects, trace.CreatedObject{
			ObjectID:   ir.MustAddress("0xe1").String(),
			ObjectType: "0xcafe::registry::Entry",
			Owner:      "Immutable",
		})
		out.Events = append(out.Events, trace.Event{
			EventType: "0xcafe::registry::Registered",
			Data:      ir.Object{"function": ir.Str("0xcafe::registry::register"), "created": ir.List{}},
		})
	} else {
		out.Error = "MOVE_ABORT in command 0: 0xcafe::fund::deposit (abort code 7)"
	}
	return trace.Entry{
		Flow:   flow,
		Label:  label,
		Sender: ir.MustAddress("0xa11ce").String(),
		Inputs: []trace.Input{{Index: 0, InputType: "Pure", Value: "0x01"}},
		Commands: []trace.Command{{
			Index:       0,
			CommandType: "MoveCall",
			Package:     ir.MustAddress("0xcafe").String(),
			Module:      "registry",
			Function:    "register",
			TypeArgs:    []string{},
			Args:        []string{"Input(0)"},
		}},
		Outputs: out,
	}
}

func testDocument(entries ...trace.Entry) trace.Document {
	return trace.Document{
		Protocol:  "txblock",
		Version:   ir.ToolVersion,
		Timestamp: "1700000000s",
		Traces:    entries,
	}
}

func TestOpen_Pragmas(t *testing.T) {
	s := createTestStore(t)

	for name, want := range map[string]string{
		"journal_mode": "wal",
		"foreign_keys": "1",
		"synchronous":  "1",
		"busy_timeout": "5000",
	} {
		got, err := s.pragma(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	v, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, migrations[len(migrations)-1].version, v)
}

func TestOpen_MigratesOlderLog(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = db.Exec(schemaSQL)
	require.NoError(t, err)
	_, err = db.Exec("PRAGMA user_version = 1")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()

	v, err := s.schemaVersion()
	require.NoError(t, err)
	assert.Equal(t, 2, v)

	var name string
	err = s.DB().QueryRow(`SELECT name FROM sqlite_master WHERE type = 'index' AND name = 'idx_entries_label'`).Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "idx_entries_label", name)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.WriteRun(context.Background(), "run-1", testDocument(testEntry("", "a", true, 10))))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.ListRuns(context.Background())
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestWriteRun_RoundTrip(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := testDocument(testEntry("flow-1", "register", true, 13300), testEntry("", "deposit", false, 0))

	require.NoError(t, s.WriteRun(ctx, "run-1", doc))

	run, got, err := s.ReadRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, doc, got)
	assert.Equal(t, 2, run.EntryCount)
	assert.Equal(t, int64(1), run.Seq)
}

func TestWriteRun_Idempotent(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	doc := testDocument(testEntry("", "a", true, 1))

	require.NoError(t, s.WriteRun(ctx, "run-1", doc))
	require.NoError(t, s.WriteRun(ctx, "run-1", doc))

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
	entries, err := s.ReadEntries(ctx, "run-1", "")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteRun_EmptyID(t *testing.T) {
	s := createTestStore(t)
	require.Error(t, s.WriteRun(context.Background(), "", testDocument()))
}

func TestListRuns_Ordered(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()

	empty, err := s.ListRuns(ctx)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	for _, id := range []string{"zzz", "aaa", "mmm"} {
		require.NoError(t, s.WriteRun(ctx, id, testDocument(testEntry("", id, true, 1))))
	}
	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, "zzz", runs[0].ID, "runs list in write order")
	assert.Equal(t, "aaa", runs[1].ID)
	assert.Equal(t, "mmm", runs[2].ID)
	assert.Equal(t, int64(3), runs[2].Seq)
}

func TestReadEntries_FlowFilter(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, "run-1", testDocument(
		testEntry("f1", "a", true, 1),
		testEntry("f2", "b", true, 1),
		testEntry("f1", "c", false, 0),
	)))
	require.NoError(t, s.WriteRun(ctx, "run-2", testDocument(testEntry("f1", "d", true, 1))))

	f1, err := s.ReadEntries(ctx, "run-1", "f1")
	require.NoError(t, err)
	require.Len(t, f1, 2)
	assert.Equal(t, "a", f1[0].Label)
	assert.Equal(t, "c", f1[1].Label)
	assert.Equal(t, int64(3), f1[1].Seq)

	all, err := s.ReadEntries(ctx, "", "f1")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "run-2", all[2].RunID)
}

func TestFindEntries(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, "run-1", testDocument(
		testEntry("f1", "a", true, 10),
		testEntry("f2", "b", true, 500),
		testEntry("f1", "c", false, 700),
	)))
	require.NoError(t, s.WriteRun(ctx, "run-2", testDocument(testEntry("f1", "a", true, 900))))

	failed := false
	tests := []struct {
		name   string
		filter EntryFilter
		want   []string // run/label
	}{
		{"everything", EntryFilter{}, []string{"run-1/a", "run-1/b", "run-1/c", "run-2/a"}},
		{"label across runs", EntryFilter{Label: "a"}, []string{"run-1/a", "run-2/a"}},
		{"failed only", EntryFilter{Success: &failed}, []string{"run-1/c"}},
		{"min gas", EntryFilter{MinGas: 500}, []string{"run-1/b", "run-1/c", "run-2/a"}},
		{"combined", EntryFilter{RunID: "run-1", Flow: "f1", MinGas: 100}, []string{"run-1/c"}},
		{"sender", EntryFilter{Sender: ir.MustAddress("0xb0b").String()}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entries, err := s.FindEntries(ctx, tt.filter)
			require.NoError(t, err)
			var got []string
			for _, e := range entries {
				got = append(got, e.RunID+"/"+e.Label)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestReadRun_NotFound(t *testing.T) {
	s := createTestStore(t)
	_, _, err := s.ReadRun(context.Background(), "missing")
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestEntryIDs_ContentAddressed(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	e := testEntry("", "same", true, 5)
	require.NoError(t, s.WriteRun(ctx, "run-1", testDocument(e)))
	require.NoError(t, s.WriteRun(ctx, "run-2", testDocument(e)))

	a, err := s.ReadEntries(ctx, "run-1", "")
	require.NoError(t, err)
	b, err := s.ReadEntries(ctx, "run-2", "")
	require.NoError(t, err)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.NotEqual(t, a[0].ID, b[0].ID)

	again, _, err := encodeEntry("run-1", 1, e)
	require.NoError(t, err)
	assert.Equal(t, a[0].ID, again)
}

func TestVerifyRun(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.WriteRun(ctx, "run-1", testDocument(
		testEntry("", "a", true, 100),
		testEntry("", "b", false, 0),
	)))

	report, err := s.VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.True(t, report.Intact())
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, uint64(100), report.GasUsed)

	_, err = s.DB().ExecContext(ctx, `UPDATE entries SET body = replace(body, '"label":"a"', '"label":"x"') WHERE seq = 1`)
	require.NoError(t, err)
	_, err = s.DB().ExecContext(ctx, `DELETE FROM entries WHERE seq = 2`)
	require.NoError(t, err)

	report, err = s.VerifyRun(ctx, "run-1")
	require.NoError(t, err)
	assert.False(t, report.Intact())
	require.Len(t, report.Mismatches, 1)
	assert.Equal(t, int64(1), report.Mismatches[0].Seq)
	assert.Equal(t, 1, report.Missing)
}

func TestSink_DrainsRecorder(t *testing.T) {
	s := createTestStore(t)
	ctx := context.Background()
	sink := NewSink(s, trace.NewSequenceGenerator("run-a", "run-b"), slog.New(slog.NewTextHandler(io.Discard, nil)))

	rec := trace.NewRecorder()
	rec.Record(testEntry("f", "one", true, 1))
	require.NoError(t, rec.DrainTo(ctx, sink))
	assert.Equal(t, "run-a", sink.LastRun())

	rec.Record(testEntry("f", "two", true, 1))
	rec.Record(testEntry("f", "three", true, 1))
	require.NoError(t, rec.DrainTo(ctx, sink))
	require.NoError(t, rec.DrainTo(ctx, sink), "empty drain writes nothing")

	runs, err := s.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, 1, runs[0].EntryCount)
	assert.Equal(t, 2, runs[1].EntryCount)
	assert.Equal(t, "run-b", sink.LastRun())
}
