package tplstore

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/lvillar/railpass"
)

// RegistryFile is the registry's name within a Source.
const RegistryFile = "registry.yaml"

// Template is a resolved template: its registry entry, the raw markup, and
// the absolute directory its relative asset references point into.
type Template struct {
	Config
	Markup    string
	AssetBase string
}

// Store resolves template ids to markup. It is safe for concurrent use.
type Store struct {
	src       Source
	reg       Registry
	byID      map[string]int
	defaultID string
	logger    *logrus.Logger

	mu    sync.Mutex
	cache map[string]string
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultID overrides the registry's default template id.
func WithDefaultID(id string) Option {
	return func(s *Store) {
		if id != "" {
			s.defaultID = id
		}
	}
}

// WithLogger sets the logger used for fallback warnings.
func WithLogger(l *logrus.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// New returns a store over src using an already parsed registry.
func New(src Source, reg Registry, opts ...Option) (*Store, error) {
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	s := &Store{
		src:       src,
		reg:       reg,
		byID:      make(map[string]int, len(reg.Templates)),
		defaultID: reg.Default,
		logger:    discardLogger(),
		cache:     make(map[string]string),
	}
	for i, t := range reg.Templates {
		s.byID[t.ID] = i
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Open reads the registry from src and returns a store over it.
func Open(ctx context.Context, src Source, opts ...Option) (*Store, error) {
	data, err := src.ReadFile(ctx, RegistryFile)
	if err != nil {
		return nil, railpass.NewError("open", RegistryFile, fmt.Errorf("%w: %w", railpass.ErrTemplateLoad, err))
	}
	reg, err := ParseRegistry(data)
	if err != nil {
		return nil, railpass.NewError("open", RegistryFile, fmt.Errorf("%w: %w", railpass.ErrTemplateLoad, err))
	}
	return New(src, reg, opts...)
}

// Embedded returns a store over the compiled-in templates.
func Embedded(opts ...Option) (*Store, error) {
	return Open(context.Background(), EmbeddedSource(), opts...)
}

// DefaultID returns the id used when none or an unknown one is given.
func (s *Store) DefaultID() string {
	return s.defaultID
}

// List returns the registry entries in declaration order.
func (s *Store) List() []Config {
	out := make([]Config, len(s.reg.Templates))
	copy(out, s.reg.Templates)
	return out
}

// Lookup returns the entry for id without any fallback.
func (s *Store) Lookup(id string) (Config, error) {
	i, ok := s.byID[id]
	if !ok {
		return Config{}, railpass.NewError("lookup", id, railpass.ErrTemplateNotFound)
	}
	return s.reg.Templates[i], nil
}

// Resolve returns the template for id. An empty id selects the default; an
// unknown id is logged and also falls back to the default. If the default
// itself is not registered the error wraps railpass.ErrTemplateNotFound.
// Asset retrieval failures wrap railpass.ErrTemplateLoad.
func (s *Store) Resolve(ctx context.Context, id string) (*Template, error) {
	if id == "" {
		id = s.defaultID
	}
	cfg, err := s.Lookup(id)
	if err != nil && id != s.defaultID {
		s.logger.WithField("template", id).Warn("unknown template, falling back to default")
		id = s.defaultID
		cfg, err = s.Lookup(id)
	}
	if err != nil {
		return nil, railpass.NewError("resolve", id, railpass.ErrTemplateNotFound)
	}

	markup, err := s.markup(ctx, cfg)
	if err != nil {
		return nil, railpass.NewError("resolve", id, fmt.Errorf("%w: %w", railpass.ErrTemplateLoad, err))
	}
	return &Template{
		Config:    cfg,
		Markup:    markup,
		AssetBase: s.src.AssetBase(path.Dir(cfg.File)),
	}, nil
}

func (s *Store) markup(ctx context.Context, cfg Config) (string, error) {
	s.mu.Lock()
	m, ok := s.cache[cfg.ID]
	s.mu.Unlock()
	if ok {
		return m, nil
	}

	data, err := s.src.ReadFile(ctx, cfg.File)
	if err != nil {
		return "", err
	}
	m = string(data)

	s.mu.Lock()
	s.cache[cfg.ID] = m
	s.mu.Unlock()
	return m, nil
}

// ReadAsset reads an asset referenced from tpl's markup or canvas, such as
// "./background.png".
func (s *Store) ReadAsset(ctx context.Context, tpl *Template, ref string) ([]byte, error) {
	name := path.Join(path.Dir(tpl.File), strings.TrimPrefix(ref, "./"))
	data, err := s.src.ReadFile(ctx, name)
	if err != nil {
		return nil, railpass.NewError("asset", ref, fmt.Errorf("%w: %w", railpass.ErrTemplateLoad, err))
	}
	return data, nil
}

// JoinAsset rewrites a "./"-relative reference against an asset base.
// Other references are returned unchanged.
func JoinAsset(base, ref string) string {
	if !strings.HasPrefix(ref, "./") {
		return ref
	}
	return strings.TrimSuffix(base, "/") + "/" + strings.TrimPrefix(ref, "./")
}

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}
