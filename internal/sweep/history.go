package sweep

import (
	"sort"
	"time"

	"github.com/AaronLay10/xyzplot/internal/events"
)

// DefaultHistoryLimit is the default number of events read to rebuild history.
const DefaultHistoryLimit = 1000

// RunSummary is one sweep reconstructed from persisted events.
type RunSummary struct {
	RunID     string    `json:"run_id"`
	Folder    string    `json:"folder_name"`
	Archived  string    `json:"archived,omitempty"`
	Status    string    `json:"status"`
	Cells     int       `json:"cells"`
	Completed int       `json:"completed"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
}

// RestoreRuns loads events from store and folds them into per-run summaries,
// newest first. A run with no terminal event is reported as "running".
// Returns nil if store is nil.
func RestoreRuns(store events.Store, limit int) ([]RunSummary, int, error) {
	if store == nil {
		return nil, 0, nil
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	rows, err := store.Query(limit)
	if err != nil {
		return nil, 0, err
	}

	// Reverse to chronological order (Query returns DESC)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}

	runs := make(map[string]*RunSummary)
	for _, row := range rows {
		id, _ := row.Fields["run_id"].(string)
		if id == "" && row.RunID != nil {
			id = *row.RunID
		}
		if id == "" {
			continue
		}
		run, ok := runs[id]
		if !ok {
			run = &RunSummary{RunID: id, Status: "running", StartedAt: row.Timestamp}
			runs[id] = run
		}
		if folder, ok := row.Fields["folder"].(string); ok {
			run.Folder = folder
		}

		switch row.Event {
		case "sweep.planned":
			run.Cells = intField(row.Fields, "cells")
			run.StartedAt = row.Timestamp
		case "sweep.archived":
			run.Archived, _ = row.Fields["archived"].(string)
		case "cell.completed":
			run.Completed++
		case "cell.failed":
			run.Failed++
		case "sweep.completed":
			run.Status = string(StatusCompleted)
			run.EndedAt = row.Timestamp
		case "sweep.degraded":
			run.Status = string(StatusDegraded)
			run.EndedAt = row.Timestamp
		case "sweep.failed":
			run.Status = "failed"
			run.EndedAt = row.Timestamp
		case "sweep.cancelled":
			run.Status = "cancelled"
			run.EndedAt = row.Timestamp
		}
	}

	out := make([]RunSummary, 0, len(runs))
	for _, run := range runs {
		out = append(out, *run)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].StartedAt.After(out[j].StartedAt)
	})
	return out, len(rows), nil
}

// intField reads a numeric field that may have round-tripped through JSON.
func intField(fields map[string]interface{}, key string) int {
	switch v := fields[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}
