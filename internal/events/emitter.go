package events

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

var buffer = NewRingBuffer(256)

var (
	store         Store
	storeMu       sync.RWMutex
	storeErrorLog bool
	totalCount    atomic.Int64
)

// SetStore sets the store used for event persistence. nil disables it.
func SetStore(s Store) {
	storeMu.Lock()
	store = s
	storeErrorLog = false
	storeMu.Unlock()
}

// GetStore returns the current store (for API queries).
func GetStore() Store {
	storeMu.RLock()
	defer storeMu.RUnlock()
	return store
}

type Event struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Name      string                 `json:"event"`
	Message   string                 `json:"msg,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func Emit(level, name, msg string, fields map[string]interface{}) ([]byte, error) {
	if err := Validate(name); err != nil {
		return nil, err
	}

	ts := time.Now().UTC()
	e := Event{
		Timestamp: ts.Format(time.RFC3339Nano),
		Level:     level,
		Name:      name,
		Message:   msg,
		Fields:    fields,
	}

	buffer.Add(e)
	totalCount.Add(1)
	broadcast(e)

	storeMu.RLock()
	s := store
	errorLogged := storeErrorLog
	storeMu.RUnlock()

	if s != nil {
		if err := s.Append(ts, level, name, msg, fields, runID(fields)); err != nil && !errorLogged {
			storeMu.Lock()
			first := !storeErrorLog
			storeErrorLog = true
			storeMu.Unlock()
			if first {
				// Straight into the buffer: going through Emit would recurse
				// while the store keeps failing.
				errEvent := Event{
					Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
					Level:     "error",
					Name:      "system.error",
					Message:   "event store append failed",
					Fields: map[string]interface{}{
						"error": err.Error(),
					},
				}
				buffer.Add(errEvent)
				broadcast(errEvent)
			}
		}
	}

	b, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal event: %w", err)
	}

	return b, nil
}

// runID pulls the sweep run identifier out of the event fields, if any.
func runID(fields map[string]interface{}) string {
	if v, ok := fields["run_id"].(string); ok {
		return v
	}
	return ""
}

func Snapshot() []Event {
	return buffer.Snapshot()
}

// TotalCount returns the number of events emitted since startup.
func TotalCount() int64 {
	return totalCount.Load()
}

// Clear resets the event buffer. Used for testing.
func Clear() {
	buffer.Clear()
}
