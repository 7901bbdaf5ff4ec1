// Package trace records executed blocks and persists them as a JSON
// document.
//
// A Recorder is an explicit, concurrency-safe log. Callers append one Entry
// per executed block and later drain the accumulated log to a Sink. Draining
// removes what was written, so every entry reaches a sink exactly once.
package trace

import (
	"github.com/roach88/txblock/internal/ir"
)

// DefaultProtocol names documents written without WithProtocol.
const DefaultProtocol = "txblock"

// Document is the persisted trace file.
type Document struct {
	Protocol  string  `json:"protocol"`
	Version   string  `json:"version"`
	Timestamp string  `json:"timestamp"`
	Traces    []Entry `json:"traces"`
}

// Entry is one executed block: what went in and what came out.
type Entry struct {
	Flow     string    `json:"flow,omitempty"`
	Label    string    `json:"label"`
	Sender   string    `json:"sender"`
	Inputs   []Input   `json:"inputs"`
	Commands []Command `json:"commands"`
	Outputs  Outputs   `json:"outputs"`
}

// Input renders one slot of the input table. Pure inputs carry their bytes
// as hex in Value; object inputs carry the id and the access mode.
type Input struct {
	Index     int    `json:"index"`
	InputType string `json:"inputType"`
	ObjectID  string `json:"objectId,omitempty"`
	TypeTag   string `json:"typeTag,omitempty"`
	Value     string `json:"value,omitempty"`
}

// Command renders one command. Args are human-readable and not meant to be
// parsed back into a block.
type Command struct {
	Index       int      `json:"index"`
	CommandType string   `json:"commandType"`
	Package     string   `json:"package,omitempty"`
	Module      string   `json:"module,omitempty"`
	Function    string   `json:"function,omitempty"`
	TypeArgs    []string `json:"typeArgs"`
	Args        []string `json:"args"`
}

// Outputs renders an execution result.
type Outputs struct {
	Success        bool            `json:"success"`
	GasUsed        uint64          `json:"gasUsed"`
	CreatedObjects []CreatedObject `json:"createdObjects"`
	MutatedObjects []string        `json:"mutatedObjects"`
	Events         []Event         `json:"events"`
	Error          string          `json:"error,omitempty"`
}

type CreatedObject struct {
	ObjectID   string `json:"objectId"`
	ObjectType string `json:"objectType"`
	Owner      string `json:"owner"`
}

type Event struct {
	EventType string    `json:"eventType"`
	Data      ir.Object `json:"data"`
}

// Summary counts the entries of a document.
type Summary struct {
	Entries   int
	Succeeded int
	Failed    int
	GasUsed   uint64
	Flows     []string
}

// Summarize tallies a document. Flows are listed in first-seen order.
func (d Document) Summarize() Summary {
	var s Summary
	seen := make(map[string]bool)
	for _, e := range d.Traces {
		s.Entries++
		if e.Outputs.Success {
			s.Succeeded++
		} else {
			s.Failed++
		}
		s.GasUsed += e.Outputs.GasUsed
		if e.Flow != "" && !seen[e.Flow] {
			seen[e.Flow] = true
			s.Flows = append(s.Flows, e.Flow)
		}
	}
	return s
}
