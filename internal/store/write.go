package store

import (
	"context"
	"fmt"

	"github.com/roach88/txblock/internal/trace"
)

// WriteRun stores a document under runID. Uses ON CONFLICT DO NOTHING for
// idempotency: writing the same run again is silently ignored. The run and
// its entries are written in one transaction.
func (s *Store) WriteRun(ctx context.Context, runID string, doc trace.Document) error {
	if runID == "" {
		return fmt.Errorf("write run: empty run id")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write run: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, seq, protocol, version, timestamp, entry_count)
		VALUES (?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM runs), ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, runID, doc.Protocol, doc.Version, doc.Timestamp, len(doc.Traces))
	if err != nil {
		return fmt.Errorf("write run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already stored.
		return tx.Commit()
	}

	for i, e := range doc.Traces {
		seq := int64(i + 1)
		id, body, err := encodeEntry(runID, seq, e)
		if err != nil {
			return fmt.Errorf("write run: entry %d: %w", seq, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO entries (id, run_id, seq, flow, label, sender, success, gas_used, body)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT DO NOTHING
		`, id, runID, seq, e.Flow, e.Label, e.Sender, e.Outputs.Success, int64(e.Outputs.GasUsed), body)
		if err != nil {
			return fmt.Errorf("write run: entry %d: %w", seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write run: commit: %w", err)
	}
	return nil
}
