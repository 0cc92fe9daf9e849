package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/AaronLay10/xyzplot/internal/grid"
	"github.com/AaronLay10/xyzplot/internal/localcache"
	"github.com/AaronLay10/xyzplot/internal/storage"
)

// Loader fetches and decodes the image behind a resolved source.
type Loader interface {
	Load(ctx context.Context, src grid.Source) (image.Image, error)
}

// SourceLoader loads every source kind the grid resolver produces: local
// cache references, data URIs, absolute URLs and server view URLs.
type SourceLoader struct {
	Store *storage.FolderStore // serves /view URLs; optional
	Cache *localcache.Cache    // serves local references; optional
	HTTP  *http.Client         // absolute URLs; nil disables them
}

// Load implements Loader.
func (l *SourceLoader) Load(ctx context.Context, src grid.Source) (image.Image, error) {
	data, err := l.bytes(ctx, src.Ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", shortRef(src.Ref), err)
	}
	return img, nil
}

func (l *SourceLoader) bytes(ctx context.Context, ref string) ([]byte, error) {
	switch {
	case localcache.IsRef(ref):
		if l.Cache == nil {
			return nil, errors.New("no local cache")
		}
		data, ok := l.Cache.Open(ref)
		if !ok {
			return nil, fmt.Errorf("local reference released: %s", ref)
		}
		return data, nil

	case strings.HasPrefix(ref, "data:"):
		return decodeDataURI(ref)

	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		if l.HTTP == nil {
			return nil, errors.New("remote sources disabled")
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
		if err != nil {
			return nil, err
		}
		resp, err := l.HTTP.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("fetch %s: status %d", ref, resp.StatusCode)
		}
		return io.ReadAll(resp.Body)

	case strings.HasPrefix(ref, "/view?"):
		if l.Store == nil {
			return nil, errors.New("no output store")
		}
		q, err := url.ParseQuery(strings.TrimPrefix(ref, "/view?"))
		if err != nil {
			return nil, err
		}
		return l.Store.ReadImage(storage.CleanFolder(q.Get("subfolder")), q.Get("filename"))
	}
	return nil, fmt.Errorf("unsupported image source: %s", shortRef(ref))
}

func decodeDataURI(ref string) ([]byte, error) {
	meta, payload, ok := strings.Cut(strings.TrimPrefix(ref, "data:"), ",")
	if !ok {
		return nil, errors.New("malformed data URI")
	}
	if strings.HasSuffix(meta, ";base64") {
		return base64.StdEncoding.DecodeString(payload)
	}
	s, err := url.PathUnescape(payload)
	return []byte(s), err
}

func shortRef(ref string) string {
	if len(ref) > 64 {
		return ref[:64] + "..."
	}
	return ref
}
