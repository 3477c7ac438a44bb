package templating

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/CTAG07/Neutral/pkg/templating"

// errOutputLimit aborts execution once a page grows past MaxOutputBytes.
var errOutputLimit = errors.New("rendered output exceeds size limit")

// Manager is the local rendering engine. It parses .ntpl files from disk
// together with the snippet files next to them, caches the parsed sets, and
// renders them against a schema. All methods are concurrent-safe.
type Manager struct {
	logger      *slog.Logger
	config      Config
	templateDir string
	tracer      trace.Tracer

	// sets caches parsed main templates by absolute path, libraries caches
	// snippet-only sets by directory. Neither is ever executed directly;
	// renders work on clones.
	sets      map[string]*template.Template
	libraries map[string]*template.Template
	mu        sync.RWMutex
}

// NewManager creates a Manager. Unset config fields take their defaults. The
// template directory must exist.
func NewManager(logger *slog.Logger, config *Config) (*Manager, error) {
	if config == nil {
		config = DefaultConfig()
	}
	cfg := config.withDefaults()

	dir, err := filepath.Abs(cfg.TemplateDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve template directory: %w", err)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open template directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("template directory %s is not a directory", dir)
	}

	m := &Manager{
		logger:      logger,
		config:      cfg,
		templateDir: dir,
		tracer:      otel.Tracer(tracerName),
		sets:        map[string]*template.Template{},
		libraries:   map[string]*template.Template{},
	}
	logger.Info("Template manager initialized", "template_dir", dir, "snippet_pattern", cfg.SnippetPattern)
	return m, nil
}

// staticFuncs holds the functions that do not depend on the render.
func staticFuncs() template.FuncMap {
	return template.FuncMap{
		"add":  add,
		"sub":  sub,
		"div":  div,
		"mult": mult,
		"max":  maxInt,
		"min":  minInt,
		"mod":  mod,
		"inc":  inc,
		"dec":  dec,

		"repeat":  repeat,
		"list":    list,
		"isSet":   isSet,
		"default": defaultValue,
		"json":    toJSON,

		"sanitize":  sanitize,
		"stripTags": stripTags,
		"markdown":  renderMarkdown,
	}
}

// GetConfig returns a copy of the effective configuration.
func (m *Manager) GetConfig() Config {
	return m.config
}

// GetTemplateDir returns the absolute template directory.
func (m *Manager) GetTemplateDir() string {
	return m.templateDir
}

// Refresh drops every cached template set so the next render reads from disk.
func (m *Manager) Refresh() {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sets)
	m.sets = map[string]*template.Template{}
	m.libraries = map[string]*template.Template{}
	m.logger.Info("Template cache cleared", "dropped", n)
}

// Render renders req. Missing or unreadable templates and a nil schema are
// reported as an *EngineError. Everything that goes wrong inside the template
// is reported as a 500 Result with HasError set.
func (m *Manager) Render(ctx context.Context, req Request) (*Result, error) {
	ctx, span := m.tracer.Start(ctx, "templating.render",
		trace.WithAttributes(attribute.String("neutral.template", req.Name())))
	defer span.End()

	res, err := m.render(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		m.logger.Error("Render failed", "template", req.Name(), "error", err)
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("neutral.status_code", res.StatusCode),
		attribute.Bool("neutral.has_error", res.HasError),
	)
	if res.HasError {
		m.logger.Warn("Template failed", "template", req.Name(), "error", res.StatusParam)
	} else {
		m.logger.Debug("Rendered template", "template", req.Name(), "status", res.StatusCode, "bytes", len(res.Content))
	}
	return res, nil
}

func (m *Manager) render(_ context.Context, req Request) (*Result, error) {
	if req.Schema == nil {
		return nil, &EngineError{Path: req.Name(), Err: fmt.Errorf("%w: no schema", ErrMalformedSchema)}
	}

	var (
		set  *template.Template
		name string
		err  error
	)
	if req.Source != "" {
		name = "source"
		set, err = m.sourceSet(req.Source)
	} else {
		name, err = m.resolve(req.Path)
		if err != nil {
			return nil, err
		}
		set, err = m.fileSet(name)
	}
	if err != nil {
		var engineErr *EngineError
		if errors.As(err, &engineErr) {
			return nil, err
		}
		return templateFailure(err), nil
	}

	return m.execute(set, name, req), nil
}

// resolve turns a request path into an absolute path to an existing file.
func (m *Manager) resolve(path string) (string, error) {
	if path == "" {
		return "", &EngineError{Err: fmt.Errorf("%w: empty path", ErrTemplateNotFound)}
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(m.templateDir, path)
	}
	path = filepath.Clean(path)

	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", &EngineError{Path: path, Err: ErrTemplateNotFound}
		}
		return "", &EngineError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	if info.IsDir() {
		return "", &EngineError{Path: path, Err: fmt.Errorf("%w: is a directory", ErrUnreadable)}
	}
	return path, nil
}

// fileSet returns the parsed set for the template at an absolute path.
func (m *Manager) fileSet(path string) (*template.Template, error) {
	if !m.config.DisableCache {
		m.mu.RLock()
		set, ok := m.sets[path]
		m.mu.RUnlock()
		if ok {
			return set, nil
		}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, &EngineError{Path: path, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
	}
	lib, err := m.library(filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	set, err := lib.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone snippet library: %w", err)
	}
	if _, err = set.New(path).Parse(string(content)); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}

	if !m.config.DisableCache {
		m.mu.Lock()
		m.sets[path] = set
		m.mu.Unlock()
	}
	return set, nil
}

// sourceSet parses inline source against the snippets of the template
// directory. Source sets are not cached.
func (m *Manager) sourceSet(source string) (*template.Template, error) {
	lib, err := m.library(m.templateDir)
	if err != nil {
		return nil, err
	}
	set, err := lib.Clone()
	if err != nil {
		return nil, fmt.Errorf("failed to clone snippet library: %w", err)
	}
	if _, err = set.New("source").Parse(source); err != nil {
		return nil, fmt.Errorf("failed to parse source: %w", err)
	}
	return set, nil
}

// library returns the parsed snippet files of dir.
func (m *Manager) library(dir string) (*template.Template, error) {
	if !m.config.DisableCache {
		m.mu.RLock()
		lib, ok := m.libraries[dir]
		m.mu.RUnlock()
		if ok {
			return lib, nil
		}
	}

	// The functions are bound per render; parsing only needs their names.
	stubs := (&renderState{}).funcs()
	lib := template.New("").
		Delims(m.config.LeftDelim, m.config.RightDelim).
		Funcs(staticFuncs()).
		Funcs(stubs)

	files, err := filepath.Glob(filepath.Join(dir, m.config.SnippetPattern))
	if err != nil {
		return nil, fmt.Errorf("invalid snippet pattern: %w", err)
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, &EngineError{Path: file, Err: fmt.Errorf("%w: %v", ErrUnreadable, err)}
		}
		if _, err = lib.New(file).Parse(string(content)); err != nil {
			return nil, fmt.Errorf("failed to parse snippets %s: %w", filepath.Base(file), err)
		}
	}
	m.logger.Debug("Loaded snippet files", "dir", dir, "count", len(files))

	if !m.config.DisableCache {
		m.mu.Lock()
		m.libraries[dir] = lib
		m.mu.Unlock()
	}
	return lib, nil
}

// execute runs the named template of a cached set on a private clone with the
// render-bound functions installed.
func (m *Manager) execute(cached *template.Template, name string, req Request) *Result {
	set, err := cached.Clone()
	if err != nil {
		return templateFailure(fmt.Errorf("failed to clone template set: %w", err))
	}
	st := &renderState{
		set:      set,
		schema:   req.Schema,
		maxDepth: m.config.MaxSnippetDepth,
	}
	set.Funcs(st.funcs())

	buf := &limitedBuffer{limit: m.config.MaxOutputBytes}
	err = set.ExecuteTemplate(buf, name, req.Schema.Tree())
	if st.halted {
		return &Result{
			Content:     buf.String(),
			StatusCode:  st.code,
			StatusText:  st.text,
			StatusParam: st.param,
		}
	}
	if err != nil {
		return templateFailure(err)
	}
	return okResult(buf.String())
}

// templateFailure is the result for a template that could not be parsed or
// executed.
func templateFailure(err error) *Result {
	return &Result{
		StatusCode:  http.StatusInternalServerError,
		StatusText:  http.StatusText(http.StatusInternalServerError),
		StatusParam: err.Error(),
		HasError:    true,
	}
}

// limitedBuffer is a bytes.Buffer that refuses writes past limit.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if b.Len()+len(p) > b.limit {
		return 0, errOutputLimit
	}
	return b.Buffer.Write(p)
}

func (b *limitedBuffer) WriteString(s string) (int, error) {
	return b.Write([]byte(s))
}
