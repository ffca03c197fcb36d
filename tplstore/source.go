package tplstore

import (
	"context"
	"embed"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Source reads template assets by registry-relative, slash-separated name.
type Source interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
	// AssetBase returns the absolute location of a registry-relative
	// directory, ending in "/". Rendered markup refers to assets through it.
	AssetBase(dir string) string
}

//go:embed templates
var embedded embed.FS

// EmbeddedRoot is the absolute prefix given to compiled-in assets.
const EmbeddedRoot = "/templates"

// FSSource reads assets from an fs.FS.
type FSSource struct {
	fsys fs.FS
	root string
}

// NewFSSource returns a source over fsys whose assets are addressed as root/name.
func NewFSSource(fsys fs.FS, root string) *FSSource {
	return &FSSource{fsys: fsys, root: root}
}

// EmbeddedSource returns the compiled-in templates.
func EmbeddedSource() *FSSource {
	sub, err := fs.Sub(embedded, "templates")
	if err != nil {
		// Only fails for an invalid literal path.
		panic(err)
	}
	return NewFSSource(sub, EmbeddedRoot)
}

// DirSource returns a source over a directory on disk. Asset references
// resolve to absolute file paths.
func DirSource(dir string) (*FSSource, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("tplstore: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("tplstore: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("tplstore: %s is not a directory", abs)
	}
	return NewFSSource(os.DirFS(abs), filepath.ToSlash(abs)), nil
}

func (s *FSSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	return fs.ReadFile(s.fsys, name)
}

func (s *FSSource) AssetBase(dir string) string {
	return strings.TrimSuffix(path.Join(s.root, dir), "/") + "/"
}

// HTTPSource fetches assets relative to a base URL.
type HTTPSource struct {
	base   *url.URL
	client *http.Client
}

// NewHTTPSource returns a source rooted at baseURL. A nil client means
// http.DefaultClient.
func NewHTTPSource(baseURL string, client *http.Client) (*HTTPSource, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("tplstore: parsing base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("tplstore: unsupported base URL scheme %q", u.Scheme)
	}
	if !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPSource{base: u, client: client}, nil
}

func (s *HTTPSource) resolve(name string) *url.URL {
	return s.base.ResolveReference(&url.URL{Path: name})
}

func (s *HTTPSource) ReadFile(ctx context.Context, name string) ([]byte, error) {
	name, err := cleanName(name)
	if err != nil {
		return nil, err
	}
	u := s.resolve(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("GET %s: %s", u, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (s *HTTPSource) AssetBase(dir string) string {
	return s.resolve(strings.TrimSuffix(path.Clean(dir), "/") + "/").String()
}

// cleanName rejects names that would leave the source root.
func cleanName(name string) (string, error) {
	n := path.Clean(strings.TrimPrefix(name, "/"))
	if n == "." || n == ".." || strings.HasPrefix(n, "../") {
		return "", fmt.Errorf("tplstore: invalid asset name %q", name)
	}
	return n, nil
}
