package realtime

import "time"

// EventType names the kind of update a matter's connections are told
// about. The set mirrors the ledger/document status transitions the
// pipeline already makes — this package never invents new states, it
// just republishes the ones internal/ledger and internal/store produce.
type EventType string

const (
	EventConnected      EventType = "connected"
	EventJobProgress    EventType = "job_progress"
	EventDocumentStatus EventType = "document_status"
	EventDocumentReady  EventType = "document_ready"
)

// Event is the wire shape published to Redis and forwarded verbatim
// (JSON-encoded) to every WebSocket connection on MatterID. Field names
// match the message schema clients already expect: job_progress reports
// progress/stage, document_status reports status, document_ready carries
// neither.
type Event struct {
	Type       EventType `json:"type"`
	MatterID   string    `json:"matter_id,omitempty"`
	UserID     string    `json:"user_id,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	JobID      string    `json:"job_id,omitempty"`
	Status     string    `json:"status,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Progress   int       `json:"progress,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}
