package events

import "time"

// Record is an event as read back from a persistent store.
type Record struct {
	EventID   int64                  `json:"event_id"`
	Timestamp time.Time              `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   *string                `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
	Instance  string                 `json:"instance_id"`
	RunID     *string                `json:"run_id,omitempty"`
}

// Store persists emitted events. Implementations live under internal/storage.
type Store interface {
	Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error
	Query(limit int) ([]Record, error)
	Close() error
}
