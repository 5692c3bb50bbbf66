package logging

// LogEntry represents a structured log record emitted by the governance engine.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// General structured data (capability ids, proposal ids, trust deltas)
	Fields map[string]interface{}
}
