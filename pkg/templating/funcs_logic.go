package templating

import (
	"encoding/json"
	"reflect"
)

// repeat returns a slice of integers from 0 to count-1.
func repeat(count any) ([]int, error) {
	n, err := number(count)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return []int{}, nil
	}
	s := make([]int, n)
	for i := 0; i < n; i++ {
		s[i] = i
	}
	return s, nil
}

// list returns a slice containing all the arguments passed to it.
func list(args ...any) []any {
	return args
}

// isSet returns true if a value is not its zero value.
func isSet(val any) bool {
	v := reflect.ValueOf(val)
	if !v.IsValid() {
		return false
	}
	return !v.IsZero()
}

// defaultValue returns val, or fallback when val is unset.
// Arguments are ordered for pipelines: {: .data.title | default "Untitled" :}
func defaultValue(fallback, val any) any {
	if !isSet(val) {
		return fallback
	}
	return val
}

// toJSON encodes val as JSON. Encoding failures yield "null".
func toJSON(val any) string {
	data, err := json.Marshal(val)
	if err != nil {
		return "null"
	}
	return string(data)
}
