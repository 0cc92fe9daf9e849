package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"mime"
	"net/http"
	"os"
	"path"
	"strconv"
	"time"

	"github.com/ohler55/ojg/oj"

	"github.com/AaronLay10/xyzplot/internal/axis"
	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/export"
	"github.com/AaronLay10/xyzplot/internal/graph"
	"github.com/AaronLay10/xyzplot/internal/grid"
	"github.com/AaronLay10/xyzplot/internal/manifest"
	"github.com/AaronLay10/xyzplot/internal/storage"
	"github.com/AaronLay10/xyzplot/internal/sweep"
	"github.com/AaronLay10/xyzplot/internal/viewer"
)

const maxSweepBody = 32 << 20

// Server serves the output folders, the grid viewer model and sweeps.
type Server struct {
	store    *storage.FolderStore
	runner   *sweep.Runner
	history  events.Store
	template string
}

// NewServer creates a server over store. A nil runner disables POST
// /xyz/sweep; a nil history lists runs from the folders instead.
func NewServer(store *storage.FolderStore, runner *sweep.Runner, history events.Store, template string) *Server {
	return &Server{store: store, runner: runner, history: history, template: template}
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   "xyzplot",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, events.RecentRunEvents(r.URL.Query().Get("run_id"), 0))
}

// folderParam returns the cleaned folder_name query value, or writes a 400.
func folderParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	folder := storage.CleanFolder(r.URL.Query().Get("folder_name"))
	if folder == "" {
		writeError(w, http.StatusBadRequest, "folder_name required")
		return "", false
	}
	return folder, true
}

func folderStatus(err error) int {
	if errors.Is(err, storage.ErrNoManifest) || errors.Is(err, os.ErrNotExist) {
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

func (s *Server) resultHandler(w http.ResponseWriter, r *http.Request) {
	folder, ok := folderParam(w, r)
	if !ok {
		return
	}
	data, err := s.store.ReadManifestBytes(folder)
	if err != nil {
		writeError(w, folderStatus(err), err.Error())
		return
	}
	if _, err := manifest.Parse(data); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	doc, err := oj.Parse(data)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	obj, ok := doc.(map[string]interface{})
	if !ok {
		writeError(w, http.StatusInternalServerError, "manifest is not an object")
		return
	}
	obj["folder_name"] = folder
	writeJSON(w, http.StatusOK, obj)
}

type imagesResponse struct {
	Folder string   `json:"folder_name"`
	Files  []string `json:"files"`
}

func (s *Server) imagesHandler(w http.ResponseWriter, r *http.Request) {
	folder, ok := folderParam(w, r)
	if !ok {
		return
	}
	files, err := s.store.ListImages(folder)
	if err != nil {
		writeError(w, folderStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, imagesResponse{Folder: folder, Files: files})
}

func (s *Server) viewHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if t := q.Get("type"); t != "" && t != "output" {
		writeError(w, http.StatusNotFound, "unknown image type")
		return
	}
	name := q.Get("filename")
	data, err := s.store.ReadImage(storage.CleanFolder(q.Get("subfolder")), name)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		w.Header().Set("Content-Type", ct)
	}
	_, _ = w.Write(data)
}

// gridParams parses z (an index or "all") and batch.
func gridParams(r *http.Request) (int, int, error) {
	q := r.URL.Query()
	z := grid.AllZ
	if v := q.Get("z"); v != "" && v != "all" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid z %q", v)
		}
		z = n
	}
	batch := 0
	if v := q.Get("batch"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid batch %q", v)
		}
		batch = n
	}
	return z, batch, nil
}

// openGrid loads folder into a fresh session and lays it out.
func (s *Server) openGrid(ctx context.Context, w http.ResponseWriter, r *http.Request) (*viewer.Session, *grid.Grid, bool) {
	folder, ok := folderParam(w, r)
	if !ok {
		return nil, nil, false
	}
	z, batch, err := gridParams(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, nil, false
	}
	session := viewer.NewSession(s.store)
	if err := session.LoadServerFolder(ctx, folder); err != nil {
		writeError(w, folderStatus(err), err.Error())
		return nil, nil, false
	}
	g, err := session.Grid(z, batch)
	if err != nil {
		session.Close()
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, nil, false
	}
	return session, g, true
}

func (s *Server) gridHandler(w http.ResponseWriter, r *http.Request) {
	session, g, ok := s.openGrid(r.Context(), w, r)
	if !ok {
		return
	}
	defer session.Close()
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) exportHandler(w http.ResponseWriter, r *http.Request) {
	session, g, ok := s.openGrid(r.Context(), w, r)
	if !ok {
		return
	}
	defer session.Close()

	exp := &export.Exporter{Loader: session.Loader()}
	var buf bytes.Buffer
	if _, err := exp.Export(r.Context(), g, &buf); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	RecordExport()
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.OutputFilename(g.Folder)))
	_, _ = io.Copy(w, &buf)
}

// SweepRequest is the body of POST /xyz/sweep.
type SweepRequest struct {
	Prompt   json.RawMessage `json:"prompt"`
	X        axis.Spec       `json:"x"`
	Y        axis.Spec       `json:"y"`
	Z        axis.Spec       `json:"z"`
	Template string          `json:"template"`
	Workflow json.RawMessage `json:"workflow,omitempty"`
}

// SweepResponse is the run report with its failed cells listed.
type SweepResponse struct {
	*sweep.Report
	FailedCells []uint32 `json:"failed"`
}

func (s *Server) sweepHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "no executor configured")
		return
	}

	var req SweepRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxSweepBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	prompt, err := graph.Parse(req.Prompt)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	template := req.Template
	if template == "" {
		template = s.template
	}

	report, err := s.runner.Run(r.Context(), sweep.Request{
		Prompt:   prompt,
		X:        req.X,
		Y:        req.Y,
		Z:        req.Z,
		Template: template,
		Workflow: req.Workflow,
	})
	RecordSweep(report, err)
	if err != nil {
		status := sweepStatus(err)
		if status >= http.StatusInternalServerError {
			SendAlert(AlertSweepFailed, SeverityCritical, err.Error(), nil)
		}
		writeError(w, status, err.Error())
		return
	}
	if report.Status == sweep.StatusDegraded {
		SendAlert(AlertSweepDegraded, SeverityWarning, "sweep finished with failed cells", map[string]interface{}{
			"run_id": report.RunID,
			"folder": report.Folder,
			"failed": report.FailedCells(),
		})
	}
	writeJSON(w, http.StatusOK, SweepResponse{Report: report, FailedCells: report.FailedCells()})
}

func sweepStatus(err error) int {
	var dangling *graph.DanglingReferenceError
	var folderErr *storage.FolderAccessError
	switch {
	case errors.Is(err, sweep.ErrSweepInProgress):
		return http.StatusConflict
	case errors.Is(err, axis.ErrInvalidAxisSpec), errors.Is(err, axis.ErrValueWithoutReference), errors.As(err, &dangling):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled):
		return 499
	case errors.As(err, &folderErr):
		return http.StatusInternalServerError
	}
	return http.StatusBadGateway
}

type runsResponse struct {
	Source string      `json:"source"`
	Runs   interface{} `json:"runs"`
}

func (s *Server) runsHandler(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		runs, _, err := sweep.RestoreRuns(s.history, 0)
		if err == nil {
			writeJSON(w, http.StatusOK, runsResponse{Source: "events", Runs: runs})
			return
		}
		log.Printf("run history unavailable, listing folders: %v", err)
	}
	runs, err := s.store.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runsResponse{Source: "folders", Runs: runs})
}

// Handler returns the routed handler with auth applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("/ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("/view", RequireAnyRole(s.viewHandler))
	mux.HandleFunc("/xyz/result", RequireAnyRole(s.resultHandler))
	mux.HandleFunc("/xyz/images", RequireAnyRole(s.imagesHandler))
	mux.HandleFunc("/xyz/grid", RequireAnyRole(s.gridHandler))
	mux.HandleFunc("/xyz/export", RequireAnyRole(s.exportHandler))
	mux.HandleFunc("/xyz/runs", RequireAnyRole(s.runsHandler))
	mux.HandleFunc("/xyz/sweep", RequireAdmin(s.sweepHandler))
	return mux
}

// ListenAndServe serves on port until ctx is done, using TLS when
// configured.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	var err error
	if tlsCfg := LoadTLSConfig(); tlsCfg != nil {
		srv.TLSConfig = tlsCfg
		log.Printf("API listening on %s (TLS)\n", srv.Addr)
		err = srv.ListenAndServeTLS("", "")
	} else {
		log.Printf("API listening on %s\n", srv.Addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
