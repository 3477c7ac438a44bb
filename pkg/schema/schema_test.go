package schema

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func mustParse(tb testing.TB, doc string) *Schema {
	tb.Helper()
	s, err := Parse([]byte(doc))
	if err != nil {
		tb.Fatalf("Parse(%s) failed: %v", doc, err)
	}
	return s
}

func TestParse(t *testing.T) {
	s := mustParse(t, `{"data":{"hello":"Hello World","n":3,"list":["a","b"]}}`)
	want := map[string]any{
		"data": map[string]any{
			"hello": "Hello World",
			"n":     float64(3),
			"list":  []any{"a", "b"},
		},
	}
	if diff := cmp.Diff(want, s.Tree()); diff != "" {
		t.Errorf("unexpected tree (-want +got):\n%s", diff)
	}

	if s = mustParse(t, `null`); len(s.Tree()) != 0 {
		t.Error("null should parse as an empty schema")
	}

	for _, doc := range []string{``, `  `, `[1,2]`, `"text"`, `{"data":`} {
		if _, err := Parse([]byte(doc)); !errors.Is(err, ErrMalformed) {
			t.Errorf("Parse(%q): expected ErrMalformed, got %v", doc, err)
		}
	}
}

func TestGetAndSet(t *testing.T) {
	s := New()
	if err := s.Set("data.site.name", "demo"); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("data.site.langs", []string{"en", "es"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Set("data.count", 7); err != nil {
		t.Fatal(err)
	}

	if name, ok := s.String("data.site.name"); !ok || name != "demo" {
		t.Errorf("String returned %q %v", name, ok)
	}
	if lang, ok := s.String("data.site.langs.1"); !ok || lang != "es" {
		t.Errorf("list index lookup returned %q %v", lang, ok)
	}
	if n, ok := s.Int("data.count"); !ok || n != 7 {
		t.Errorf("Int returned %d %v", n, ok)
	}
	if langs, ok := s.Strings("data.site.langs"); !ok || !cmp.Equal(langs, []string{"en", "es"}) {
		t.Errorf("Strings returned %v %v", langs, ok)
	}
	if _, ok := s.Get("data.site.missing"); ok {
		t.Error("Get reported a missing key as present")
	}
	if _, ok := s.Get("data.site.langs.9"); ok {
		t.Error("Get reported an out-of-range index as present")
	}

	// Setting through a scalar replaces it with an object.
	if err := s.Set("data.count.value", true); err != nil {
		t.Fatal(err)
	}
	if b, ok := s.Bool("data.count.value"); !ok || !b {
		t.Errorf("Bool returned %v %v", b, ok)
	}

	if err := s.Set("data.fn", func() {}); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("expected ErrUnsupportedValue, got %v", err)
	}
	if err := s.Set("", "scalar"); !errors.Is(err, ErrUnsupportedValue) {
		t.Errorf("setting a scalar root should fail, got %v", err)
	}
}

func TestIntAcceptsNumericStrings(t *testing.T) {
	s := mustParse(t, `{"status_code":"404","bad":"x"}`)
	if n, ok := s.Int("status_code"); !ok || n != 404 {
		t.Errorf("Int returned %d %v", n, ok)
	}
	if _, ok := s.Int("bad"); ok {
		t.Error("Int accepted a non-numeric string")
	}
}

func TestMerge(t *testing.T) {
	s := mustParse(t, `{"data":{"site":{"name":"demo","theme":"dark"},"keep":1}}`)
	s.Merge(mustParse(t, `{"data":{"site":{"theme":"light"},"CONTEXT":{"ROUTE":"error"}}}`))

	want := map[string]any{
		"data": map[string]any{
			"site":    map[string]any{"name": "demo", "theme": "light"},
			"keep":    float64(1),
			"CONTEXT": map[string]any{"ROUTE": "error"},
		},
	}
	if diff := cmp.Diff(want, s.Tree()); diff != "" {
		t.Errorf("unexpected merge result (-want +got):\n%s", diff)
	}

	// The merged values must not alias the source.
	other := mustParse(t, `{"data":{"list":[1]}}`)
	s.Merge(other)
	if err := other.Set("data.list", []any{"changed"}); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("data.list.0"); v != float64(1) {
		t.Errorf("merge aliased the source tree: %v", v)
	}

	s.Merge(nil)
}

func TestMergeIsAdditive(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("merge keeps untouched keys and applies new ones", prop.ForAll(
		func(base, partial map[string]string) bool {
			s := New()
			if err := s.Set("data", base); err != nil {
				return false
			}
			p := New()
			if err := p.Set("data", partial); err != nil {
				return false
			}
			s.Merge(p)

			for k, v := range partial {
				if got, ok := s.String("data." + k); !ok || got != v {
					return false
				}
			}
			for k, v := range base {
				if _, overridden := partial[k]; overridden {
					continue
				}
				if got, ok := s.String("data." + k); !ok || got != v {
					return false
				}
			}
			return true
		},
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
		gen.MapOf(gen.Identifier(), gen.AlphaString()),
	))

	properties.TestingRun(t)
}

func TestCloneIsIndependent(t *testing.T) {
	s := mustParse(t, `{"data":{"a":{"b":[1,2]}}}`)
	c := s.Clone()
	if err := c.Set("data.a.b", "x"); err != nil {
		t.Fatal(err)
	}
	if v, _ := s.Get("data.a.b.1"); v != float64(2) {
		t.Error("changing a clone changed the original")
	}

	var nilSchema *Schema
	if nilSchema.Clone() == nil {
		t.Error("cloning a nil schema should return an empty schema")
	}
}

func TestErrorInfo(t *testing.T) {
	s := New()
	if _, ok := s.Error(); ok {
		t.Error("empty schema reported an error")
	}
	s.SetError(ErrorInfo{Code: 404, Text: "Not Found", Param: "/missing"})
	got, ok := s.Error()
	if !ok || got != (ErrorInfo{Code: 404, Text: "Not Found", Param: "/missing"}) {
		t.Errorf("Error returned %+v %v", got, ok)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "schema.yaml")
	jsonPath := filepath.Join(dir, "schema.json")
	badPath := filepath.Join(dir, "bad.yml")

	files := map[string]string{
		yamlPath: "data:\n  site:\n    validLanguages: [en, es]\n  port: 8080\n",
		jsonPath: `{"data":{"site":{"validLanguages":["en","es"]},"port":8080}}`,
		badPath:  "- just\n- a list\n",
	}
	for path, content := range files {
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	fromYAML, err := LoadFile(yamlPath)
	if err != nil {
		t.Fatalf("LoadFile(yaml) failed: %v", err)
	}
	fromJSON, err := LoadFile(jsonPath)
	if err != nil {
		t.Fatalf("LoadFile(json) failed: %v", err)
	}
	if diff := cmp.Diff(fromJSON.Tree(), fromYAML.Tree()); diff != "" {
		t.Errorf("YAML and JSON documents differ (-json +yaml):\n%s", diff)
	}

	if _, err = LoadFile(badPath); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed for a top-level list, got %v", err)
	}
	if _, err = LoadFile(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestMsgpack(t *testing.T) {
	s := mustParse(t, `{"data":{"hello":"Hello World","n":3,"nested":{"ok":true}}}`)
	data, err := s.MarshalMsgpack()
	if err != nil {
		t.Fatalf("MarshalMsgpack failed: %v", err)
	}
	decoded, err := ParseMsgpack(data)
	if err != nil {
		t.Fatalf("ParseMsgpack failed: %v", err)
	}
	if diff := cmp.Diff(s.Tree(), decoded.Tree()); diff != "" {
		t.Errorf("msgpack changed the tree (-want +got):\n%s", diff)
	}

	if _, err = ParseMsgpack([]byte{0xc1}); !errors.Is(err, ErrMalformed) {
		t.Errorf("expected ErrMalformed, got %v", err)
	}
}

func TestFromMap(t *testing.T) {
	type site struct {
		Name string `json:"name"`
	}
	s, err := FromMap(map[string]any{
		"data": map[string]any{"site": site{Name: "demo"}, "n": int64(2)},
	})
	if err != nil {
		t.Fatalf("FromMap failed: %v", err)
	}
	if name, _ := s.String("data.site.name"); name != "demo" {
		t.Errorf("struct value was not converted: %v", s.Tree())
	}
	if n, _ := s.Get("data.n"); n != float64(2) {
		t.Errorf("int64 was not normalized: %T", n)
	}
}
