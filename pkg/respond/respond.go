// Package respond turns a rendered template into an HTTP response, applying
// the redirect and error-page rules every frontend shares.
package respond

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/CTAG07/Neutral/pkg/schema"
	"github.com/CTAG07/Neutral/pkg/templating"
)

// DefaultErrorPath is the template rendered for status codes of 400 and above.
const DefaultErrorPath = "error.ntpl"

// Responder writes Template handles to HTTP responses.
type Responder struct {
	logger    *slog.Logger
	errorPath string
}

// New creates a Responder. An empty errorPath uses DefaultErrorPath.
func New(logger *slog.Logger, errorPath string) *Responder {
	if errorPath == "" {
		errorPath = DefaultErrorPath
	}
	return &Responder{logger: logger, errorPath: errorPath}
}

// Write renders t and writes the outcome to w:
//
//   - a redirect status (301, 302, 307, 308) becomes a Location header with
//     no body;
//   - a status of 400 or more re-renders t once on the error template with
//     data.error set, and is sent with the original status;
//   - any other status is sent with the rendered content;
//   - an engine failure is logged and sent as a plain 500.
func (rs *Responder) Write(w http.ResponseWriter, r *http.Request, t *templating.Template) {
	content, err := t.Render(r.Context())
	if err != nil {
		rs.logger.Error("Failed to render template", "template", t.Path(), "error", err)
		writeError(w, http.StatusInternalServerError)
		return
	}

	code := t.StatusCode()
	switch {
	case templating.IsRedirect(code):
		rs.logger.Debug("Redirecting", "template", t.Path(), "status", code, "location", t.StatusParam())
		w.Header().Set("Location", t.StatusParam())
		w.WriteHeader(code)
		return
	case code >= http.StatusBadRequest:
		content, err = rs.errorPage(r, t)
		if err != nil {
			writeError(w, code)
			return
		}
	}

	writeHTML(w, code, content)
}

// errorPage switches t to the error template and renders it once with the
// status of the failed render merged into the schema.
func (rs *Responder) errorPage(r *http.Request, t *templating.Template) (string, error) {
	code, text, param := t.StatusCode(), t.StatusText(), t.StatusParam()
	if t.Path() == rs.errorPath {
		return "", fmt.Errorf("error template itself returned %d", code)
	}
	// Template failures carry parser and executor detail, including file
	// paths. It goes to the log, never to the page.
	if t.HasError() {
		rs.logger.Warn("Template failed, rendering error page", "template", t.Path(), "status", code, "detail", param)
		param = ""
	}

	partial := schema.New()
	partial.SetError(schema.ErrorInfo{Code: code, Text: text, Param: param})
	_ = partial.Set(schema.PathContext+".ROUTE", "error")

	t.SetPath(rs.errorPath)
	t.MergeSchema(partial)
	content, err := t.Render(r.Context())
	if err != nil {
		rs.logger.Error("Failed to render error page", "template", rs.errorPath, "status", code, "error", err)
		return "", err
	}
	return content, nil
}

// Handler serves every request by rendering path with a schema built from
// the request and base. The route is the URL path.
func (rs *Responder) Handler(renderer templating.Renderer, path string, base *schema.Schema, opts schema.RequestOptions) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := schema.FromRequest(r, strings.Trim(r.URL.Path, "/\\"), base, opts)
		rs.Write(w, r, templating.New(renderer, path, s))
	})
}

func writeHTML(w http.ResponseWriter, code int, content string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(content))
}

func writeError(w http.ResponseWriter, code int) {
	http.Error(w, fmt.Sprintf("%d %s", code, templating.StatusText(code)), code)
}
