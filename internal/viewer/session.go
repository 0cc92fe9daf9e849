// Package viewer holds what one viewer has loaded: an in-memory run, a
// server output folder or a locally picked folder.
package viewer

import (
	"context"
	"errors"
	"sync"

	"github.com/go-git/go-billy/v5"

	"github.com/AaronLay10/xyzplot/internal/events"
	"github.com/AaronLay10/xyzplot/internal/export"
	"github.com/AaronLay10/xyzplot/internal/grid"
	"github.com/AaronLay10/xyzplot/internal/localcache"
	"github.com/AaronLay10/xyzplot/internal/manifest"
	"github.com/AaronLay10/xyzplot/internal/storage"
)

// Provenance names where the loaded data came from.
type Provenance string

const (
	FromNone   Provenance = ""
	FromRun    Provenance = "run"
	FromServer Provenance = "server"
	FromLocal  Provenance = "local"
)

// ErrNothingLoaded is returned by Grid before any Load call.
var ErrNothingLoaded = errors.New("viewer: nothing loaded")

// Session owns one local-file cache. Loading anything new releases the
// previous local files; Close releases them for good.
type Session struct {
	server *storage.FolderStore
	cache  *localcache.Cache

	mu       sync.RWMutex
	from     Provenance
	folder   string
	manifest *manifest.Manifest // nil in flat mode
	files    []string           // flat mode listing
}

// NewSession creates a session reading server folders from server, which
// may be nil for local-only use.
func NewSession(server *storage.FolderStore) *Session {
	s := &Session{server: server}
	s.cache = localcache.New(func(n int) {
		events.Emit("info", "viewer.released", "", map[string]interface{}{"entries": n})
	})
	return s
}

// LoadRun shows a manifest produced in this process.
func (s *Session) LoadRun(m *manifest.Manifest) {
	s.cache.ReleaseAll()
	s.mu.Lock()
	s.from, s.folder, s.manifest, s.files = FromRun, m.FolderName, m, nil
	s.mu.Unlock()
	s.loaded("tree")
}

// LoadServerFolder loads folder from the server output. A missing or
// malformed manifest falls back to the folder's image listing.
func (s *Session) LoadServerFolder(ctx context.Context, folder string) error {
	if s.server == nil {
		return errors.New("viewer: no server store")
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	folder = storage.CleanFolder(folder)
	if folder == "" {
		return &storage.FolderAccessError{Op: "load", Folder: folder, Err: errors.New("empty folder name")}
	}

	m, files, err := load(s.server, folder)
	if err != nil {
		return err
	}

	s.cache.ReleaseAll()
	s.mu.Lock()
	s.from, s.folder, s.manifest, s.files = FromServer, folder, m, files
	s.mu.Unlock()
	s.loaded(modeOf(m))
	return nil
}

// LoadLocalFolder loads a folder picked on the local machine. Its images are
// held in the session cache, replacing whatever was held before.
func (s *Session) LoadLocalFolder(fs billy.Filesystem) error {
	local := storage.NewFolderStore(fs)
	m, files, err := load(local, "")
	if err != nil {
		return err
	}
	names := files
	if m != nil {
		if names, err = local.ListImages(""); err != nil {
			return err
		}
	}
	if err := s.cache.Load(fs, names); err != nil {
		return &storage.FolderAccessError{Op: "read", Folder: fs.Root(), Err: err}
	}

	folder := ""
	if m != nil {
		folder = m.FolderName
	}
	s.mu.Lock()
	s.from, s.folder, s.manifest, s.files = FromLocal, folder, m, files
	s.mu.Unlock()
	s.loaded(modeOf(m))
	return nil
}

// load reads the manifest of folder, or its listing when there is none.
func load(store *storage.FolderStore, folder string) (*manifest.Manifest, []string, error) {
	m, err := store.ReadManifest(folder)
	if err == nil {
		return m, nil, nil
	}
	var perr *manifest.ParseError
	if !errors.Is(err, storage.ErrNoManifest) && !errors.As(err, &perr) {
		return nil, nil, err
	}
	events.Emit("info", "viewer.fallback", err.Error(), map[string]interface{}{"folder": folder})

	files, err := store.ListImages(folder)
	if err != nil {
		return nil, nil, err
	}
	return nil, files, nil
}

// Grid renders the loaded data. z and batch are as for grid.Build.
func (s *Session) Grid(z, batch int) (*grid.Grid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.from == FromNone {
		return nil, ErrNothingLoaded
	}
	res := grid.Resolver{Folder: s.folder}
	if s.from == FromLocal {
		res.Local = s.cache
	}
	if s.manifest != nil {
		return grid.Build(s.manifest, s.folder, res, z, batch), nil
	}
	return grid.BuildFlat(s.files, s.folder, res), nil
}

// Loader returns an image loader matching the session's sources.
func (s *Session) Loader() *export.SourceLoader {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return &export.SourceLoader{Store: s.server, Cache: s.cache}
}

// Provenance reports what is loaded.
func (s *Session) Provenance() Provenance {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.from
}

// Folder returns the loaded folder name, empty for an unnamed local folder.
func (s *Session) Folder() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.folder
}

// Manifest returns the loaded manifest, nil in flat mode.
func (s *Session) Manifest() *manifest.Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// CachedFiles returns the number of local files currently held.
func (s *Session) CachedFiles() int {
	return s.cache.Len()
}

// Close releases the local cache and forgets the loaded data.
func (s *Session) Close() {
	s.cache.ReleaseAll()
	s.mu.Lock()
	s.from, s.folder, s.manifest, s.files = FromNone, "", nil, nil
	s.mu.Unlock()
}

func (s *Session) loaded(mode string) {
	s.mu.RLock()
	fields := map[string]interface{}{"source": string(s.from), "folder": s.folder, "mode": mode}
	s.mu.RUnlock()
	events.Emit("info", "viewer.loaded", "", fields)
}

func modeOf(m *manifest.Manifest) string {
	if m == nil {
		return string(grid.ModeFlat)
	}
	return string(grid.ModeTree)
}
