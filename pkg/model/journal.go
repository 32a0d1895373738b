package model

import "time"

// JournalEventType identifies the kind of journal entry.
type JournalEventType string

const (
	EventTypeSubmit      JournalEventType = "submit"
	EventTypeBatchSubmit JournalEventType = "batch_submit"
	EventTypeCapture     JournalEventType = "capture"
)

// JournalEntry is a single line in the local submission journal (JSONL).
type JournalEntry struct {
	Timestamp     time.Time        `json:"timestamp"`
	EventType     JournalEventType `json:"event_type"`
	Fingerprint   string           `json:"fingerprint"`
	TransactionID string           `json:"transaction_id,omitempty"`
	NetworkTag    string           `json:"network_tag,omitempty"`
	Details       map[string]any   `json:"details,omitempty"`
	PrevHash      HashValue        `json:"prev_hash"`
	RecordHash    HashValue        `json:"record_hash"`
}
