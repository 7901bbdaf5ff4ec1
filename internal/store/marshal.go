package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/txblock/internal/ir"
	"github.com/roach88/txblock/internal/trace"
)

// entryBody converts an entry to an ir.Object so it can be written in
// canonical form and hashed.
func entryBody(e trace.Entry) (ir.Object, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	var body ir.Object
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("marshal entry: %w", err)
	}
	return body, nil
}

// entryID is the content address of an entry within its run. The same
// entry stored under two runs gets two ids.
func entryID(runID string, seq int64, body ir.Object) (string, error) {
	return ir.EntryID(ir.Object{"run": ir.Str(runID), "entry": body}, seq)
}

// encodeEntry returns the id and canonical JSON TEXT of an entry.
func encodeEntry(runID string, seq int64, e trace.Entry) (id, text string, err error) {
	body, err := entryBody(e)
	if err != nil {
		return "", "", err
	}
	id, err = entryID(runID, seq, body)
	if err != nil {
		return "", "", fmt.Errorf("entry id: %w", err)
	}
	data, err := ir.MarshalCanonical(body)
	if err != nil {
		return "", "", fmt.Errorf("marshal entry: %w", err)
	}
	return id, string(data), nil
}

func decodeEntry(text string) (trace.Entry, error) {
	var e trace.Entry
	if err := json.Unmarshal([]byte(text), &e); err != nil {
		return trace.Entry{}, fmt.Errorf("unmarshal entry: %w", err)
	}
	return e, nil
}
