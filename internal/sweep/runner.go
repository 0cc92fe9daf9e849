package sweep

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring"
	"github.com/google/uuid"

	"github.com/AaronLay10/xyzplot/internal/axis"
	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/foldername"
	"github.com/AaronLay10/xyzplot/internal/graph"
	"github.com/AaronLay10/xyzplot/internal/manifest"
	"github.com/AaronLay10/xyzplot/internal/storage"
)

// ErrSweepInProgress is returned when a sweep targets a folder that another
// sweep is still writing.
var ErrSweepInProgress = errors.New("sweep already in progress for folder")

// Policy decides what happens after a cell fails.
type Policy string

const (
	// ContinueOnFailure records the cell as empty and moves on.
	ContinueOnFailure Policy = "continue"
	// AbortOnFailure stops the run; no manifest is written.
	AbortOnFailure Policy = "abort"
)

// ParsePolicy maps a config value to a Policy. Empty means continue.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ContinueOnFailure:
		return ContinueOnFailure, nil
	case AbortOnFailure:
		return AbortOnFailure, nil
	}
	return "", fmt.Errorf("unknown failure policy: %q", s)
}

// Output is one image produced by an execution.
type Output struct {
	Filename  string
	Subfolder string
	Type      string
	Data      []byte
}

// Executor runs one fully substituted graph and returns its images in batch
// order. It must honor ctx cancellation.
type Executor interface {
	Execute(ctx context.Context, prompt graph.Prompt) ([]Output, error)
}

// Store is the folder side of a run.
type Store interface {
	Archive(folder string) (string, error)
	WriteImage(folder, name string, data []byte) error
	WriteWorkflow(folder string, data []byte) error
	WriteManifest(folder string, m *manifest.Manifest) error
}

// CellExecutionError wraps the failure of one cell.
type CellExecutionError struct {
	Cell Cell
	Err  error
}

func (e *CellExecutionError) Error() string {
	return fmt.Sprintf("cell %d (x=%q y=%q z=%q): %v", e.Cell.Ordinal, e.Cell.Values.X, e.Cell.Values.Y, e.Cell.Values.Z, e.Err)
}

func (e *CellExecutionError) Unwrap() error {
	return e.Err
}

// Request describes one sweep.
type Request struct {
	Prompt   graph.Prompt
	X, Y, Z  axis.Spec
	Template string
	Workflow []byte // optional, saved as workflow.json
}

// Status is the outcome of a run.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusDegraded  Status = "degraded"
)

// Report summarizes a finished run.
type Report struct {
	RunID     string             `json:"run_id"`
	Folder    string             `json:"folder_name"`
	Archived  string             `json:"archived,omitempty"`
	Status    Status             `json:"status"`
	Cells     int                `json:"cells"`
	Completed int                `json:"completed"`
	Failed    *roaring.Bitmap    `json:"-"`
	Errors    []string           `json:"errors,omitempty"`
	Manifest  *manifest.Manifest `json:"-"`
}

// FailedCells lists failed cell ordinals in plan order.
func (r *Report) FailedCells() []uint32 {
	if r.Failed == nil {
		return nil
	}
	return r.Failed.ToArray()
}

// Runner executes sweeps. Cells of one sweep run strictly one after another;
// sweeps into different folders may run concurrently.
type Runner struct {
	exec   Executor
	store  Store
	policy Policy
	now    func() time.Time

	mu     sync.Mutex
	active map[string]struct{}
}

// NewRunner creates a runner writing through store.
func NewRunner(exec Executor, store Store, policy Policy) *Runner {
	if policy == "" {
		policy = ContinueOnFailure
	}
	return &Runner{
		exec:   exec,
		store:  store,
		policy: policy,
		now:    time.Now,
		active: make(map[string]struct{}),
	}
}

// Prepare resolves the axes, checks every reference against the prompt and
// expands the folder name. Errors here are fatal to the sweep.
func Prepare(req Request, now time.Time) (*axis.Set, string, error) {
	set, err := axis.Resolve(req.X, req.Y, req.Z)
	if err != nil {
		return nil, "", err
	}
	for _, a := range set.Axes() {
		if err := req.Prompt.Lookup(a.Ref); err != nil {
			return nil, "", fmt.Errorf("axis %s: %w", a.Name, err)
		}
	}
	folder := foldername.Expand(req.Template, foldername.RefsFromSet(set), now)
	return set, folder, nil
}

// Run plans and executes one sweep. The target folder is archived before the
// first cell and result.json is written only once every cell has run. On
// cancellation or an aborting failure the manifest is left unwritten.
func (r *Runner) Run(ctx context.Context, req Request) (*Report, error) {
	started := r.now()
	set, folder, err := Prepare(req, started)
	if err != nil {
		return nil, err
	}

	if err := r.acquire(folder); err != nil {
		return nil, err
	}
	defer r.release(folder)

	cells := Plan(set)
	report := &Report{
		RunID:  uuid.NewString(),
		Folder: folder,
		Cells:  len(cells),
		Failed: roaring.New(),
		Status: StatusCompleted,
	}
	fields := func(extra map[string]interface{}) map[string]interface{} {
		f := map[string]interface{}{"run_id": report.RunID, "folder": folder}
		for k, v := range extra {
			f[k] = v
		}
		return f
	}

	events.Emit("info", "sweep.planned", "", fields(map[string]interface{}{
		"cells": len(cells),
		"x":     len(set.X.Values),
		"y":     len(set.Y.Values),
		"z":     set.Z.Len(),
	}))

	archived, err := r.store.Archive(folder)
	if err != nil {
		events.Emit("error", "sweep.failed", err.Error(), fields(nil))
		return nil, err
	}
	report.Archived = archived
	if archived != "" {
		events.Emit("info", "sweep.archived", "", fields(map[string]interface{}{"archived": archived}))
	}

	events.Emit("info", "sweep.started", "", fields(nil))

	builder := manifest.NewBuilder(folder, set)
	for _, cell := range cells {
		if err := ctx.Err(); err != nil {
			return nil, r.cancelled(report, fields, err)
		}

		cellFields := fields(map[string]interface{}{"cell": cell.Ordinal, "x": cell.X, "y": cell.Y, "z": cell.ZIndex()})
		events.Emit("info", "cell.started", "", cellFields)

		refs, err := r.runCell(ctx, set, folder, req.Prompt, cell)
		if err != nil {
			if ctx.Err() != nil {
				return nil, r.cancelled(report, fields, ctx.Err())
			}
			var ferr *storage.FolderAccessError
			if errors.As(err, &ferr) {
				events.Emit("error", "sweep.failed", err.Error(), fields(nil))
				return nil, err
			}

			cerr := &CellExecutionError{Cell: cell, Err: err}
			builder.Fail(uint32(cell.Ordinal))
			report.Failed = builder.Failed()
			report.Errors = append(report.Errors, cerr.Error())
			events.Emit("warn", "cell.failed", err.Error(), cellFields)

			if r.policy == AbortOnFailure {
				events.Emit("error", "sweep.failed", cerr.Error(), fields(nil))
				return nil, cerr
			}
			continue
		}

		if err := builder.Add(cell.X, cell.Y, cell.Z, refs); err != nil {
			return nil, err
		}
		report.Completed++
		cellFields["images"] = len(refs)
		events.Emit("info", "cell.completed", "", cellFields)
	}

	m := builder.Manifest(r.now())
	if len(req.Workflow) > 0 {
		if err := r.store.WriteWorkflow(folder, req.Workflow); err != nil {
			events.Emit("error", "sweep.failed", err.Error(), fields(nil))
			return nil, err
		}
		m.Workflow = &manifest.FileRef{Filename: storage.WorkflowFile}
	}
	if err := r.store.WriteManifest(folder, m); err != nil {
		events.Emit("error", "sweep.failed", err.Error(), fields(nil))
		return nil, err
	}
	report.Manifest = m
	events.Emit("info", "manifest.written", "", fields(map[string]interface{}{"file": manifest.FileName}))

	summary := fields(map[string]interface{}{
		"cells":       report.Cells,
		"completed":   report.Completed,
		"failed":      report.Failed.GetCardinality(),
		"duration_ms": r.now().Sub(started).Milliseconds(),
	})
	if report.Failed.IsEmpty() {
		events.Emit("info", "sweep.completed", "", summary)
	} else {
		report.Status = StatusDegraded
		events.Emit("warn", "sweep.degraded", "", summary)
	}
	return report, nil
}

// runCell substitutes the cell's values into a copy of the prompt, executes
// it and stores the resulting batch.
func (r *Runner) runCell(ctx context.Context, set *axis.Set, folder string, prompt graph.Prompt, cell Cell) ([]manifest.ImageRef, error) {
	p := prompt.Clone()
	if err := p.Set(set.X.Ref, cell.Values.X); err != nil {
		return nil, err
	}
	if err := p.Set(set.Y.Ref, cell.Values.Y); err != nil {
		return nil, err
	}
	if set.HasZ() {
		if err := p.Set(set.Z.Ref, cell.Values.Z); err != nil {
			return nil, err
		}
	}

	outputs, err := r.exec.Execute(ctx, p)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, errors.New("execution produced no images")
	}

	refs := make([]manifest.ImageRef, 0, len(outputs))
	for b, out := range outputs {
		ref := manifest.Ref(folder, cell.X, cell.Y, cell.ZIndex(), b, imageExt(out.Filename))
		if err := r.store.WriteImage(folder, ref.Filename, out.Data); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

func (r *Runner) cancelled(report *Report, fields func(map[string]interface{}) map[string]interface{}, err error) error {
	events.Emit("warn", "sweep.cancelled", err.Error(), fields(map[string]interface{}{
		"completed": report.Completed,
	}))
	return err
}

func (r *Runner) acquire(folder string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.active[folder]; busy {
		return fmt.Errorf("%w: %s", ErrSweepInProgress, folder)
	}
	r.active[folder] = struct{}{}
	return nil
}

func (r *Runner) release(folder string) {
	r.mu.Lock()
	delete(r.active, folder)
	r.mu.Unlock()
}

func imageExt(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(path.Ext(filename)), ".")
	if ext == "" {
		return "png"
	}
	return ext
}
