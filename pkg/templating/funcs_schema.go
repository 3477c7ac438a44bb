package templating

import (
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"strconv"
	"strings"

	"github.com/CTAG07/Neutral/pkg/schema"
)

// errHalt stops template execution after a status directive.
var errHalt = errors.New("rendering halted by status directive")

// renderState is the per-render state the schema-aware functions close over.
// Each render gets its own, bound to its own clone of the template set.
type renderState struct {
	set      *template.Template
	schema   *schema.Schema
	maxDepth int
	depth    int

	halted bool
	code   int
	text   string
	param  string
}

func (st *renderState) funcs() template.FuncMap {
	return template.FuncMap{
		"exit":       st.exit,
		"redirect":   st.redirect,
		"get":        st.get,
		"trans":      st.trans,
		"snippet":    st.snippet,
		"hasSnippet": st.hasSnippet,
	}
}

func (st *renderState) halt(code int, param string) {
	st.halted = true
	st.code = code
	st.text = StatusText(code)
	st.param = param
}

// exit stops rendering with the given status code and optional parameter.
//
//	{: exit 404 :}
//	{: exit 403 "members only" :}
func (st *renderState) exit(code any, param ...any) (string, error) {
	c, ok := asInt(code)
	if !ok || c < 100 || c > 599 {
		st.halt(http.StatusInternalServerError, fmt.Sprintf("invalid status code %v", code))
		return "", errHalt
	}
	p := ""
	if len(param) > 0 {
		p = fmt.Sprint(param[0])
	}
	st.halt(c, p)
	return "", errHalt
}

// redirect stops rendering and asks the caller to redirect to url.
//
//	{: redirect 302 "/login" :}
func (st *renderState) redirect(code any, url string) (string, error) {
	c, ok := asInt(code)
	if !ok || !IsRedirect(c) {
		st.halt(http.StatusInternalServerError, fmt.Sprintf("invalid redirect code %v", code))
		return "", errHalt
	}
	if strings.TrimSpace(url) == "" {
		st.halt(http.StatusInternalServerError, "redirect without target")
		return "", errHalt
	}
	st.halt(c, url)
	return "", errHalt
}

// get looks up a dot-separated schema path and returns nil when any part of it
// is missing, which a plain field chain would turn into an execution error.
func (st *renderState) get(path string) any {
	v, _ := st.schema.Get(path)
	return v
}

// trans translates text into the current locale using
// inherit.locale.trans.<locale>, returning text unchanged when no translation
// exists.
func (st *renderState) trans(text string) string {
	locale := st.schema.Locale()
	if locale == "" {
		return text
	}
	table, ok := st.schema.Map("inherit.locale.trans." + locale)
	if !ok {
		return text
	}
	if tr, ok := table[text].(string); ok && tr != "" {
		return tr
	}
	return text
}

// snippet executes the named snippet with data, or with the whole schema when
// no data is given. Undefined snippets render as nothing.
func (st *renderState) snippet(name string, data ...any) (template.HTML, error) {
	if st.set.Lookup(name) == nil {
		return "", nil
	}
	if st.depth >= st.maxDepth {
		return "", fmt.Errorf("snippet %q: nesting deeper than %d", name, st.maxDepth)
	}
	st.depth++
	defer func() { st.depth-- }()

	var d any = st.schema.Tree()
	if len(data) > 0 {
		d = data[0]
	}
	var b strings.Builder
	if err := st.set.ExecuteTemplate(&b, name, d); err != nil {
		return "", err
	}
	// The snippet's own output has already been escaped.
	return template.HTML(b.String()), nil
}

func (st *renderState) hasSnippet(name string) bool {
	return st.set.Lookup(name) != nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case uint64:
		return int(n), true
	case float32:
		return int(n), true
	case float64:
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		return i, err == nil
	default:
		return 0, false
	}
}
