package templating

import (
	"context"
	"net/http"

	"github.com/CTAG07/Neutral/pkg/schema"
)

// Renderer renders a template against a schema. Template-level outcomes such
// as redirects or HTTP-style errors are reported through the Result; an error
// is only returned for failures that prevented rendering, and is always an
// *EngineError.
type Renderer interface {
	Render(ctx context.Context, req Request) (*Result, error)
}

// Request describes a single render. When Source is set it is rendered as
// template text and Path is ignored.
type Request struct {
	Path   string
	Source string
	Schema *schema.Schema
}

// Name returns the path, or "source" for inline renders. It is used in logs.
func (r Request) Name() string {
	if r.Source != "" {
		return "source"
	}
	return r.Path
}

// Result is the outcome of one render. It is created fresh per render and
// never modified after it is returned.
type Result struct {
	Content     string `json:"-"`
	StatusCode  int    `json:"status_code"`
	StatusText  string `json:"status_text"`
	StatusParam string `json:"status_param"`
	// HasError is set when the engine recovered from a template failure,
	// such as a parse or execution error, by reporting a 500.
	HasError bool `json:"has_error"`
}

// IsRedirect reports whether the result asks the caller to redirect to
// StatusParam.
func (r *Result) IsRedirect() bool {
	return IsRedirect(r.StatusCode)
}

// IsError reports whether the result asks the caller for an error page.
func (r *Result) IsError() bool {
	return r.StatusCode >= http.StatusBadRequest
}

// okResult is the status reported when a template sets none.
func okResult(content string) *Result {
	return &Result{
		Content:    content,
		StatusCode: http.StatusOK,
		StatusText: http.StatusText(http.StatusOK),
	}
}

// IsRedirect reports whether code is one of the redirect codes a template can
// emit: 301, 302, 307 or 308.
func IsRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}

// StatusText returns the standard reason phrase for code, or "Unknown".
func StatusText(code int) string {
	if text := http.StatusText(code); text != "" {
		return text
	}
	return "Unknown"
}
