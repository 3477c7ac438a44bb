package schema

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const (
	// SectionInherit holds engine-level settings such as the active locale.
	SectionInherit = "inherit"
	// SectionData holds the values exposed to templates.
	SectionData = "data"

	PathLocale  = "inherit.locale.current"
	PathTheme   = "data.site.theme"
	PathContext = "data.CONTEXT"
	PathError   = "data.error"
)

var (
	// ErrMalformed is returned when a document cannot be decoded into a schema tree.
	ErrMalformed = errors.New("malformed schema")

	// ErrUnsupportedValue is returned by Set and FromMap for values that have no
	// JSON representation.
	ErrUnsupportedValue = errors.New("unsupported schema value")
)

// Schema is the tree handed to a renderer alongside a template path. Values are
// kept in their JSON shape: map[string]any, []any, string, float64, bool or nil.
// The zero value is an empty schema ready to use.
type Schema struct {
	root map[string]any
}

// New returns an empty schema.
func New() *Schema {
	return &Schema{root: map[string]any{}}
}

// FromMap builds a schema from an arbitrary map, normalizing every value into
// its JSON shape. The input map is not retained.
func FromMap(m map[string]any) (*Schema, error) {
	v, err := normalize(m)
	if err != nil {
		return nil, err
	}
	return &Schema{root: v.(map[string]any)}, nil
}

// Tree returns the live tree. It is shared with the schema and must be treated
// as read-only; use Clone for an independent copy.
func (s *Schema) Tree() map[string]any {
	if s.root == nil {
		s.root = map[string]any{}
	}
	return s.root
}

// Clone returns a deep copy of the schema.
func (s *Schema) Clone() *Schema {
	if s == nil {
		return New()
	}
	return &Schema{root: cloneMap(s.root)}
}

// Get looks up a dot-separated path such as "data.CONTEXT.ROUTE". Integer
// segments index into lists. The second return is false when any segment is
// missing.
func (s *Schema) Get(path string) (any, bool) {
	if s == nil {
		return nil, false
	}
	var cur any = s.Tree()
	if path == "" {
		return cur, true
	}
	for _, seg := range strings.Split(path, ".") {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[seg]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(seg)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// String returns the string at path. Numbers and booleans are not converted.
func (s *Schema) String(path string) (string, bool) {
	v, ok := s.Get(path)
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Int returns the number at path truncated to an int. Numeric strings are
// accepted, since engines report status codes either way.
func (s *Schema) Int(path string) (int, bool) {
	v, ok := s.Get(path)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// Bool returns the boolean at path.
func (s *Schema) Bool(path string) (bool, bool) {
	v, ok := s.Get(path)
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

// Map returns the object at path. The map is shared with the schema.
func (s *Schema) Map(path string) (map[string]any, bool) {
	v, ok := s.Get(path)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// Strings returns the list at path, keeping only its string elements.
func (s *Schema) Strings(path string) ([]string, bool) {
	v, ok := s.Get(path)
	if !ok {
		return nil, false
	}
	list, ok := v.([]any)
	if !ok {
		return nil, false
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if str, ok := item.(string); ok {
			out = append(out, str)
		}
	}
	return out, true
}

// Set stores value at path, creating intermediate objects as needed. Any
// non-object found along the way is replaced by an object.
func (s *Schema) Set(path string, value any) error {
	v, err := normalize(value)
	if err != nil {
		return fmt.Errorf("set %q: %w", path, err)
	}
	if path == "" {
		m, ok := v.(map[string]any)
		if !ok {
			return fmt.Errorf("set root: %w: root must be an object", ErrUnsupportedValue)
		}
		s.root = m
		return nil
	}
	s.set(path, v)
	return nil
}

// set stores an already normalized value.
func (s *Schema) set(path string, v any) {
	segs := strings.Split(path, ".")
	node := s.Tree()
	for _, seg := range segs[:len(segs)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[seg] = next
		}
		node = next
	}
	node[segs[len(segs)-1]] = v
}

// Merge deep-merges other into s. Objects present on both sides are merged
// recursively; any other value from other replaces the one in s. Keys only
// present in s are left untouched.
func (s *Schema) Merge(other *Schema) {
	if other == nil {
		return
	}
	mergeInto(s.Tree(), cloneMap(other.root))
}

// Locale returns inherit.locale.current, or "" when unset.
func (s *Schema) Locale() string {
	l, _ := s.String(PathLocale)
	return l
}

// SetLocale sets inherit.locale.current.
func (s *Schema) SetLocale(locale string) {
	s.set(PathLocale, locale)
}

// ErrorInfo is the data.error object merged into a schema before an error page
// is rendered.
type ErrorInfo struct {
	Code  int
	Text  string
	Param string
}

// SetError sets data.error.
func (s *Schema) SetError(e ErrorInfo) {
	s.set(PathError, map[string]any{
		"code":  float64(e.Code),
		"text":  e.Text,
		"param": e.Param,
	})
}

// Error returns data.error when present.
func (s *Schema) Error() (ErrorInfo, bool) {
	m, ok := s.Map(PathError)
	if !ok {
		return ErrorInfo{}, false
	}
	var e ErrorInfo
	e.Code, _ = toInt(m["code"])
	e.Text, _ = m["text"].(string)
	e.Param, _ = m["param"].(string)
	return e, true
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeInto(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneMap(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return val
	}
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case float64:
		return int(n), true
	case int:
		return n, true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	default:
		return 0, false
	}
}
