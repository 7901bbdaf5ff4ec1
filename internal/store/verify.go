package store

import (
	"context"
	"fmt"
)

// Mismatch is a stored entry whose id no longer matches its content.
type Mismatch struct {
	RunID  string
	Seq    int64
	Stored string
	Actual string
}

// RunReport summarizes a run for history listings and integrity checks.
type RunReport struct {
	Run        Run
	Succeeded  int
	Failed     int
	GasUsed    uint64
	Mismatches []Mismatch
	// Missing counts entries the run header declares but the table lacks.
	Missing int
}

// Intact reports whether every entry is present and matches its id.
func (r RunReport) Intact() bool {
	return len(r.Mismatches) == 0 && r.Missing == 0
}

// VerifyRun re-reads a run, recomputes every entry id from the stored body
// and tallies outcomes.
func (s *Store) VerifyRun(ctx context.Context, runID string) (RunReport, error) {
	run, _, err := s.ReadRun(ctx, runID)
	if err != nil {
		return RunReport{}, fmt.Errorf("verify run: %w", err)
	}
	entries, err := s.ReadEntries(ctx, runID, "")
	if err != nil {
		return RunReport{}, fmt.Errorf("verify run: %w", err)
	}

	report := RunReport{Run: run, Missing: run.EntryCount - len(entries)}
	for _, e := range entries {
		if e.Outputs.Success {
			report.Succeeded++
		} else {
			report.Failed++
		}
		report.GasUsed += e.Outputs.GasUsed

		body, err := entryBody(e.Entry)
		if err != nil {
			return RunReport{}, fmt.Errorf("verify run: %w", err)
		}
		actual, err := entryID(runID, e.Seq, body)
		if err != nil {
			return RunReport{}, fmt.Errorf("verify run: %w", err)
		}
		if actual != e.ID {
			report.Mismatches = append(report.Mismatches, Mismatch{RunID: runID, Seq: e.Seq, Stored: e.ID, Actual: actual})
		}
	}
	return report, nil
}
