// Package events provides per-job event topics that feed push streams.
package events

import "github.com/jonathan/purchase-tracker/internal/types"

// Type identifies the kind of a streamed event.
type Type string

const (
	TypeStatus   Type = "status"
	TypeProgress Type = "progress"
	TypeLog      Type = "log"
	TypeError    Type = "error"
	TypeDone     Type = "done"
)

// Event is one item of a job's ordered event stream.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// Status builds a status event.
func Status(s types.JobStatus) Event {
	return Event{Type: TypeStatus, Payload: s}
}

// Progress builds a progress event.
func Progress(p types.Progress) Event {
	return Event{Type: TypeProgress, Payload: p}
}

// Log builds a log line event.
func Log(line string) Event {
	return Event{Type: TypeLog, Payload: line}
}

// Error builds an error event.
func Error(msg string) Event {
	return Event{Type: TypeError, Payload: msg}
}

// Done builds the terminal event of every stream.
func Done() Event {
	return Event{Type: TypeDone}
}
