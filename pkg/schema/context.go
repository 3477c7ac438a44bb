package schema

import (
	"net/http"
	"slices"
	"strings"

	"golang.org/x/text/language"
)

// Context is the request-derived data.CONTEXT object. Every value comes from the
// client and is stored verbatim, so templates must treat it as untrusted.
type Context struct {
	Route   string
	Get     map[string]string
	Post    map[string]string
	Cookies map[string]string
	Headers map[string]string
	Session *string
	Ajax    bool
}

// SetContext writes c into data.CONTEXT. Keys already present in data.CONTEXT
// that Context does not model are kept.
func (s *Schema) SetContext(c Context) {
	ctx, ok := s.Map(PathContext)
	if !ok {
		ctx = map[string]any{}
		s.set(PathContext, ctx)
	}
	ctx["ROUTE"] = c.Route
	ctx["GET"] = stringMap(c.Get)
	ctx["POST"] = stringMap(c.Post)
	ctx["COOKIES"] = stringMap(c.Cookies)
	ctx["HEADERS"] = stringMap(c.Headers)
	if c.Session != nil {
		ctx["SESSION"] = *c.Session
	} else {
		ctx["SESSION"] = nil
	}
	ctx["AJAX"] = c.Ajax
}

// Context reads data.CONTEXT back. Missing parts come back empty.
func (s *Schema) Context() Context {
	var c Context
	c.Route, _ = s.String(PathContext + ".ROUTE")
	c.Get = s.stringMapAt(PathContext + ".GET")
	c.Post = s.stringMapAt(PathContext + ".POST")
	c.Cookies = s.stringMapAt(PathContext + ".COOKIES")
	c.Headers = s.stringMapAt(PathContext + ".HEADERS")
	if session, ok := s.String(PathContext + ".SESSION"); ok {
		c.Session = &session
	}
	c.Ajax, _ = s.Bool(PathContext + ".AJAX")
	return c
}

func (s *Schema) stringMapAt(path string) map[string]string {
	out := map[string]string{}
	m, ok := s.Map(path)
	if !ok {
		return out
	}
	for k, v := range m {
		if str, ok := v.(string); ok {
			out[k] = str
		}
	}
	return out
}

func stringMap(m map[string]string) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// RequestOptions names the parameters and headers FromRequest reads.
type RequestOptions struct {
	// LangKey is the GET parameter or cookie that selects the locale.
	LangKey string
	// ThemeKey is the GET parameter or cookie that selects the theme.
	ThemeKey string
	// SessionCookie is copied into data.CONTEXT.SESSION when present.
	SessionCookie string
	// AjaxHeader marks requests issued by the page's own scripts.
	AjaxHeader string
}

// DefaultRequestOptions returns the parameter names used by the bundled templates.
func DefaultRequestOptions() RequestOptions {
	return RequestOptions{
		LangKey:       "lang",
		ThemeKey:      "theme",
		SessionCookie: "SESSION",
		AjaxHeader:    "Requested-With-Ajax",
	}
}

// FromRequest builds the schema for one request: a copy of base with
// data.CONTEXT populated from r, the locale negotiated into
// inherit.locale.current and the theme chosen into data.site.theme. base is not
// modified and may be nil.
func FromRequest(r *http.Request, route string, base *Schema, opts RequestOptions) *Schema {
	s := base.Clone()

	c := Context{
		Route:   strings.Trim(route, "/\\"),
		Get:     map[string]string{},
		Post:    map[string]string{},
		Cookies: map[string]string{},
		Headers: map[string]string{},
	}
	for name, values := range r.Header {
		if len(values) > 0 {
			c.Headers[strings.ToUpper(name)] = values[0]
		}
	}
	c.Headers["HOST"] = r.Host

	for key, values := range r.URL.Query() {
		if len(values) > 0 {
			c.Get[key] = values[0]
		}
	}
	if r.Method == http.MethodPost {
		if err := r.ParseForm(); err == nil {
			for key, values := range r.PostForm {
				if len(values) > 0 {
					c.Post[key] = values[0]
				}
			}
		}
	}
	for _, cookie := range r.Cookies() {
		c.Cookies[cookie.Name] = cookie.Value
	}
	if session, ok := c.Cookies[opts.SessionCookie]; ok && opts.SessionCookie != "" {
		c.Session = &session
	}
	if opts.AjaxHeader != "" {
		c.Ajax = r.Header.Get(opts.AjaxHeader) != ""
	}
	s.SetContext(c)

	if valid, ok := s.Strings("data.site.validLanguages"); ok && len(valid) > 0 {
		requested := firstParam(c, opts.LangKey)
		s.SetLocale(NegotiateLocale(valid, requested, r.Header.Get("Accept-Language")))
	}

	theme := firstParam(c, opts.ThemeKey)
	if theme == "" {
		if themes, ok := s.Strings("data.site.validThemes"); ok && len(themes) > 0 {
			theme = themes[0]
		}
	}
	s.set(PathTheme, theme)

	return s
}

// firstParam returns the GET parameter key, falling back to the cookie.
func firstParam(c Context, key string) string {
	if key == "" {
		return ""
	}
	if v, ok := c.Get[key]; ok {
		return v
	}
	return c.Cookies[key]
}

// NegotiateLocale picks one of valid. An explicitly requested locale wins when
// it is valid; an invalid explicit request falls back to the first valid
// locale. Without a request the Accept-Language header is matched against
// valid. valid must not be empty.
func NegotiateLocale(valid []string, requested, acceptLanguage string) string {
	if requested != "" {
		if slices.Contains(valid, requested) {
			return requested
		}
		return valid[0]
	}
	if acceptLanguage == "" {
		return valid[0]
	}
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return valid[0]
	}
	tags := make([]language.Tag, len(valid))
	for i, v := range valid {
		tag, err := language.Parse(v)
		if err != nil {
			tag = language.Und
		}
		tags[i] = tag
	}
	_, idx, conf := language.NewMatcher(tags).Match(prefs...)
	if conf == language.No || idx < 0 || idx >= len(valid) {
		return valid[0]
	}
	return valid[idx]
}
