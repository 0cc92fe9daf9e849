package events

import (
	"errors"
	"sync"
	"testing"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	fail    error
	appends []string
	runIDs  []string
}

func (s *fakeStore) Append(ts time.Time, level, event, msg string, fields map[string]interface{}, runID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.appends = append(s.appends, event)
	s.runIDs = append(s.runIDs, runID)
	return nil
}

func (s *fakeStore) Query(limit int) ([]Record, error) { return nil, nil }
func (s *fakeStore) Close() error                      { return nil }

func TestEmitRejectsUnknownEvent(t *testing.T) {
	if _, err := Emit("info", "scene.started", "", nil); err == nil {
		t.Error("expected error for unregistered event name")
	}
}

func TestEmitPersistsToStore(t *testing.T) {
	Clear()
	fs := &fakeStore{}
	SetStore(fs)
	defer SetStore(nil)

	before := TotalCount()
	if _, err := Emit("info", "sweep.started", "", map[string]interface{}{"run_id": "r1"}); err != nil {
		t.Fatalf("emit failed: %v", err)
	}

	if TotalCount() != before+1 {
		t.Errorf("expected total count %d, got %d", before+1, TotalCount())
	}
	if len(fs.appends) != 1 || fs.appends[0] != "sweep.started" {
		t.Errorf("expected one persisted sweep.started, got %v", fs.appends)
	}
	if fs.runIDs[0] != "r1" {
		t.Errorf("expected run id r1, got %q", fs.runIDs[0])
	}
}

func TestEmitStoreFailureReportedOnce(t *testing.T) {
	Clear()
	SetStore(&fakeStore{fail: errors.New("disk full")})
	defer SetStore(nil)

	for i := 0; i < 3; i++ {
		Emit("info", "cell.completed", "", nil)
	}

	errorCount := 0
	for _, e := range Snapshot() {
		if e.Name == "system.error" {
			errorCount++
		}
	}
	if errorCount != 1 {
		t.Errorf("expected exactly one system.error, got %d", errorCount)
	}
	if len(Snapshot()) != 4 {
		t.Errorf("expected 4 buffered events, got %d", len(Snapshot()))
	}
}

func TestRingBufferWraps(t *testing.T) {
	rb := NewRingBuffer(3)
	for i := 0; i < 5; i++ {
		rb.Add(Event{Fields: map[string]interface{}{"i": i}})
	}
	snap := rb.Snapshot()
	if len(snap) != 3 {
		t.Fatalf("expected 3 events, got %d", len(snap))
	}
	if snap[0].Fields["i"] != 2 || snap[2].Fields["i"] != 4 {
		t.Errorf("expected oldest-first order 2..4, got %v..%v", snap[0].Fields["i"], snap[2].Fields["i"])
	}
}
