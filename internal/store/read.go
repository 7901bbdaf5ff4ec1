package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/txblock/internal/queryir"
	"github.com/roach88/txblock/internal/querysql"
	"github.com/roach88/txblock/internal/trace"
)

// Run is one stored document header.
type Run struct {
	ID         string
	Seq        int64
	Protocol   string
	Version    string
	Timestamp  string
	EntryCount int
}

// StoredEntry is an entry with its storage identity.
type StoredEntry struct {
	ID    string
	RunID string
	Seq   int64
	trace.Entry
}

// ListRuns returns every run, oldest first.
// Returns an empty slice (not nil) if nothing is stored.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seq, protocol, version, timestamp, entry_count
		FROM runs
		ORDER BY seq ASC, id COLLATE BINARY ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Seq, &r.Protocol, &r.Version, &r.Timestamp, &r.EntryCount); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun rebuilds the document stored under id.
// Returns an error wrapping sql.ErrNoRows if the run does not exist.
func (s *Store) ReadRun(ctx context.Context, id string) (Run, trace.Document, error) {
	var r Run
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seq, protocol, version, timestamp, entry_count
		FROM runs
		WHERE id = ?
	`, id).Scan(&r.ID, &r.Seq, &r.Protocol, &r.Version, &r.Timestamp, &r.EntryCount)
	if err != nil {
		return Run{}, trace.Document{}, fmt.Errorf("read run %s: %w", id, err)
	}

	entries, err := s.ReadEntries(ctx, id, "")
	if err != nil {
		return Run{}, trace.Document{}, err
	}
	doc := trace.Document{
		Protocol:  r.Protocol,
		Version:   r.Version,
		Timestamp: r.Timestamp,
		Traces:    make([]trace.Entry, len(entries)),
	}
	for i, e := range entries {
		doc.Traces[i] = e.Entry
	}
	return r, doc, nil
}

// ReadEntries returns the entries of a run in recorded order. A non-empty
// flow keeps only entries of that flow. An empty runID reads across every
// run, ordered by run and then entry.
func (s *Store) ReadEntries(ctx context.Context, runID, flow string) ([]StoredEntry, error) {
	return s.FindEntries(ctx, EntryFilter{RunID: runID, Flow: flow})
}

// FindEntries returns the entries matching f, ordered by run and then by
// recorded order.
func (s *Store) FindEntries(ctx context.Context, f EntryFilter) ([]StoredEntry, error) {
	q := f.query()
	if problems := queryir.Validate(q, schema); len(problems) > 0 {
		return nil, fmt.Errorf("query entries: %s", problems[0])
	}
	text, params, err := querysql.Compile(q)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, text, params...)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	defer rows.Close()

	entries := []StoredEntry{}
	for rows.Next() {
		se, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, se)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (StoredEntry, error) {
	var se StoredEntry
	var body string
	if err := rows.Scan(&se.ID, &se.RunID, &se.Seq, &body); err != nil {
		return StoredEntry{}, fmt.Errorf("scan entry: %w", err)
	}
	e, err := decodeEntry(body)
	if err != nil {
		return StoredEntry{}, fmt.Errorf("entry %s: %w", se.ID, err)
	}
	se.Entry = e
	return se, nil
}
