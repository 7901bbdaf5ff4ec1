package ir

// Version constants for the trace schema and the tool.
const (
	// TraceSchemaVersion is bumped when the persisted trace layout changes.
	TraceSchemaVersion = "1"

	// ToolVersion is reported as the document version of written traces.
	ToolVersion = "0.1.0"
)
