// Package storage is the storage boundary for sweep output: one folder per
// run under an output root, holding the images, result.json and an optional
// workflow.json. All access goes through a billy.Filesystem so the same code
// serves the server output directory and a locally picked folder.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/util"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/AaronLay10/xyzplot/internal/manifest"
)

// WorkflowFile is the sibling file holding the caller's workflow document.
const WorkflowFile = "workflow.json"

// ErrNoManifest is returned by ReadManifest when the folder has no result.json.
var ErrNoManifest = errors.New("no manifest")

// FolderAccessError reports a failure at the storage boundary.
type FolderAccessError struct {
	Op     string
	Folder string
	Err    error
}

func (e *FolderAccessError) Error() string {
	return fmt.Sprintf("%s %q: %v", e.Op, e.Folder, e.Err)
}

func (e *FolderAccessError) Unwrap() error {
	return e.Err
}

// imageExts are the extensions treated as images by listings.
var imageExts = map[string]struct{}{
	".png":  {},
	".jpg":  {},
	".jpeg": {},
	".webp": {},
	".gif":  {},
	".bmp":  {},
	".avif": {},
}

// IsImage reports whether name has an image extension.
func IsImage(name string) bool {
	_, ok := imageExts[strings.ToLower(path.Ext(name))]
	return ok
}

// FolderStore reads and writes sweep folders on a billy filesystem.
type FolderStore struct {
	fs  billy.Filesystem
	now func() time.Time
}

// NewFolderStore wraps fs, whose root is the output directory.
func NewFolderStore(fs billy.Filesystem) *FolderStore {
	return &FolderStore{fs: fs, now: time.Now}
}

// Filesystem returns the underlying filesystem.
func (s *FolderStore) Filesystem() billy.Filesystem {
	return s.fs
}

// CleanFolder normalizes a caller-supplied folder name: backslashes become
// slashes, any ".." is removed, as are surrounding slashes.
func CleanFolder(name string) string {
	name = strings.ReplaceAll(name, `\`, "/")
	name = strings.ReplaceAll(name, "..", "")
	return strings.Trim(path.Clean("/"+name), "/")
}

// Exists reports whether folder exists as a directory.
func (s *FolderStore) Exists(folder string) bool {
	fi, err := s.fs.Stat(folder)
	return err == nil && fi.IsDir()
}

// Archive vacates folder before a new run writes into it. An existing folder
// is renamed to "<folder>_old_<unix>" and the archived name returned; a fresh
// empty folder is then created.
func (s *FolderStore) Archive(folder string) (string, error) {
	if folder == "" {
		return "", &FolderAccessError{Op: "archive", Folder: folder, Err: errors.New("empty folder name")}
	}

	var archived string
	if _, err := s.fs.Stat(folder); err == nil {
		base := fmt.Sprintf("%s_old_%d", folder, s.now().Unix())
		archived = base
		for i := 1; ; i++ {
			if _, err := s.fs.Stat(archived); errors.Is(err, os.ErrNotExist) {
				break
			}
			archived = fmt.Sprintf("%s_%d", base, i)
		}
		if err := s.fs.Rename(folder, archived); err != nil {
			return "", &FolderAccessError{Op: "archive", Folder: folder, Err: err}
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", &FolderAccessError{Op: "archive", Folder: folder, Err: err}
	}

	if err := s.fs.MkdirAll(folder, 0o755); err != nil {
		return "", &FolderAccessError{Op: "create", Folder: folder, Err: err}
	}
	return archived, nil
}

// WriteImage stores one output image.
func (s *FolderStore) WriteImage(folder, name string, data []byte) error {
	if err := util.WriteFile(s.fs, s.fs.Join(folder, name), data, 0o644); err != nil {
		return &FolderAccessError{Op: "write image", Folder: folder, Err: err}
	}
	return nil
}

// WriteWorkflow stores the workflow document next to the manifest.
func (s *FolderStore) WriteWorkflow(folder string, data []byte) error {
	if err := util.WriteFile(s.fs, s.fs.Join(folder, WorkflowFile), data, 0o644); err != nil {
		return &FolderAccessError{Op: "write workflow", Folder: folder, Err: err}
	}
	return nil
}

// WriteManifest writes result.json. The file is written under a temporary
// name and renamed into place, so readers never see a partial manifest.
func (s *FolderStore) WriteManifest(folder string, m *manifest.Manifest) error {
	data, err := m.Marshal()
	if err != nil {
		return err
	}
	final := s.fs.Join(folder, manifest.FileName)
	tmp := final + ".tmp"
	if err := util.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return &FolderAccessError{Op: "write manifest", Folder: folder, Err: err}
	}
	if err := s.fs.Rename(tmp, final); err != nil {
		_ = s.fs.Remove(tmp)
		return &FolderAccessError{Op: "write manifest", Folder: folder, Err: err}
	}
	return nil
}

// ReadManifestBytes returns the raw result.json of folder, or ErrNoManifest.
func (s *FolderStore) ReadManifestBytes(folder string) ([]byte, error) {
	data, err := util.ReadFile(s.fs, s.fs.Join(folder, manifest.FileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoManifest
	}
	if err != nil {
		return nil, &FolderAccessError{Op: "read manifest", Folder: folder, Err: err}
	}
	return data, nil
}

// ReadManifest loads and parses result.json. A malformed file yields a
// *manifest.ParseError.
func (s *FolderStore) ReadManifest(folder string) (*manifest.Manifest, error) {
	data, err := s.ReadManifestBytes(folder)
	if err != nil {
		return nil, err
	}
	return manifest.Parse(data)
}

// ListImages returns the plain image filenames of folder in numeric-aware
// order. An empty folder name lists the filesystem root.
func (s *FolderStore) ListImages(folder string) ([]string, error) {
	if folder != "" && !s.Exists(folder) {
		return nil, &FolderAccessError{Op: "list", Folder: folder, Err: os.ErrNotExist}
	}
	entries, err := s.fs.ReadDir(folder)
	if err != nil {
		return nil, &FolderAccessError{Op: "list", Folder: folder, Err: err}
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !IsImage(e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	SortNames(files)
	return files, nil
}

// ReadImage returns the bytes of one image in folder.
func (s *FolderStore) ReadImage(folder, name string) ([]byte, error) {
	if name == "" || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return nil, &FolderAccessError{Op: "read image", Folder: folder, Err: fmt.Errorf("invalid filename %q", name)}
	}
	f, err := s.fs.Open(s.fs.Join(folder, name))
	if err != nil {
		return nil, &FolderAccessError{Op: "read image", Folder: folder, Err: err}
	}
	defer f.Close()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &FolderAccessError{Op: "read image", Folder: folder, Err: err}
	}
	return data, nil
}

// ListRuns summarizes every top-level folder holding a readable manifest,
// newest first. Unreadable manifests are skipped.
func (s *FolderStore) ListRuns() ([]manifest.Summary, error) {
	entries, err := s.fs.ReadDir("")
	if err != nil {
		return nil, &FolderAccessError{Op: "list", Folder: "", Err: err}
	}
	var out []manifest.Summary
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		data, err := s.ReadManifestBytes(e.Name())
		if err != nil {
			continue
		}
		sum, err := manifest.Probe(data)
		if err != nil {
			continue
		}
		if sum.FolderName == "" {
			sum.FolderName = e.Name()
		}
		out = append(out, *sum)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	return out, nil
}

// SortNames sorts filenames so that embedded numbers compare by value
// ("x2" before "x10").
func SortNames(names []string) {
	collate.New(language.Und, collate.Numeric).SortStrings(names)
}
