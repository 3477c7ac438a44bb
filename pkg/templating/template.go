package templating

import (
	"context"
	"fmt"
	"net/http"

	"github.com/CTAG07/Neutral/pkg/schema"
)

// Template binds a template path, or inline source, to a schema and remembers
// the outcome of its last render. It is the handle callers use to render a
// page, inspect the status and, on failure, switch to an error page.
//
// A Template is not safe for concurrent use; create one per request.
type Template struct {
	renderer Renderer
	path     string
	source   string
	schema   *schema.Schema
	result   *Result
	err      error
}

// New returns a handle for the template at path. The schema is copied, so later
// changes to s do not affect the handle. A nil schema starts empty.
func New(renderer Renderer, path string, s *schema.Schema) *Template {
	return &Template{
		renderer: renderer,
		path:     path,
		schema:   s.Clone(),
	}
}

// NewFromSource returns a handle that renders source as template text.
func NewFromSource(renderer Renderer, source string, s *schema.Schema) *Template {
	t := New(renderer, "", s)
	t.source = source
	return t
}

// Render renders the bound template and returns its content. Redirects and
// HTTP-style errors raised by the template are not errors; check StatusCode.
func (t *Template) Render(ctx context.Context) (string, error) {
	res, err := t.renderer.Render(ctx, Request{
		Path:   t.path,
		Source: t.source,
		Schema: t.schema,
	})
	if err != nil {
		t.result, t.err = nil, err
		return "", err
	}
	if res == nil {
		t.result = nil
		t.err = &EngineError{Path: t.path, Err: fmt.Errorf("%w: empty result", ErrRemote)}
		return "", t.err
	}
	cp := *res
	t.result, t.err = &cp, nil
	return cp.Content, nil
}

// SetPath rebinds the handle to another template file. The schema, including
// anything merged into it, is kept.
func (t *Template) SetPath(path string) {
	t.path = path
	t.source = ""
}

// SetSource rebinds the handle to inline template text.
func (t *Template) SetSource(source string) {
	t.source = source
	t.path = ""
}

// Path returns the bound template path, or "" for inline source.
func (t *Template) Path() string {
	return t.path
}

// Schema returns the handle's schema. Changes to it apply to the next render.
func (t *Template) Schema() *schema.Schema {
	return t.schema
}

// MergeSchema deep-merges partial into the handle's schema. Keys that partial
// does not mention are left unchanged.
func (t *Template) MergeSchema(partial *schema.Schema) {
	t.schema.Merge(partial)
}

// MergeSchemaJSON decodes a JSON object and merges it like MergeSchema. On
// error the schema is left unchanged.
func (t *Template) MergeSchemaJSON(data []byte) error {
	partial, err := schema.Parse(data)
	if err != nil {
		return fmt.Errorf("failed to merge schema: %w", err)
	}
	t.schema.Merge(partial)
	return nil
}

// StatusCode returns the status of the last render: 200 when the template set
// none or nothing was rendered yet, 500 when the last render failed outright.
func (t *Template) StatusCode() int {
	switch {
	case t.err != nil:
		return http.StatusInternalServerError
	case t.result == nil:
		return http.StatusOK
	default:
		return t.result.StatusCode
	}
}

// StatusText returns the reason phrase matching StatusCode.
func (t *Template) StatusText() string {
	if t.result != nil && t.err == nil {
		return t.result.StatusText
	}
	return http.StatusText(t.StatusCode())
}

// StatusParam returns the redirect target or error detail of the last render.
func (t *Template) StatusParam() string {
	if t.err != nil {
		return t.err.Error()
	}
	if t.result == nil {
		return ""
	}
	return t.result.StatusParam
}

// HasError reports whether the last render failed or recovered from an error.
func (t *Template) HasError() bool {
	if t.err != nil {
		return true
	}
	return t.result != nil && t.result.HasError
}

// Result returns a copy of the last render's result, or false when the last
// render failed or none happened yet.
func (t *Template) Result() (Result, bool) {
	if t.result == nil {
		return Result{}, false
	}
	return *t.result, true
}

// Err returns the engine failure of the last render, if any.
func (t *Template) Err() error {
	return t.err
}
