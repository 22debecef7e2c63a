package testutils

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/mcuadros/go-defaults"
	"github.com/yudai/gojsondiff"
	"github.com/yudai/gojsondiff/formatter"
)

// PresencePlaceholder in expected JSON matches any actual value of the key.
const PresencePlaceholder = "<<PRESENCE>>"

// JSONAssertOptions control how documents are normalized before comparison.
type JSONAssertOptions struct {
	IgnoreExtraKeys  bool     `default:"true"`
	IgnoreArrayOrder bool     `default:"false"`
	IgnoredFields    []string `default:""`
}

// JSONOption configures a JSONAsserter.
type JSONOption func(*JSONAssertOptions)

// JSONAsserter compares JSON documents structurally and reports a readable diff.
type JSONAsserter struct {
	t       TestingT
	options JSONAssertOptions
}

// NewJSONAsserter creates an asserter with default options: keys missing from the
// expected document are ignored, arrays are compared in order.
func NewJSONAsserter(t TestingT) *JSONAsserter {
	ja := &JSONAsserter{t: t}
	defaults.SetDefaults(&ja.options)
	return ja
}

// WithOptions applies opts and returns the asserter.
func (ja *JSONAsserter) WithOptions(opts ...JSONOption) *JSONAsserter {
	for _, opt := range opts {
		opt(&ja.options)
	}
	return ja
}

// Assert fails the test when actual does not match expected.
func (ja *JSONAsserter) Assert(actual, expected string) bool {
	diff := ja.Diff(actual, expected)
	if diff == "" {
		return true
	}
	ja.t.Errorf("JSON assertion failed:\n%s", diff)
	return false
}

// Diff returns a description of the differences, or "" when the documents match.
func (ja *JSONAsserter) Diff(actual, expected string) string {
	var want, got interface{}
	if err := json.Unmarshal([]byte(expected), &want); err != nil {
		return fmt.Sprintf("invalid expected JSON: %v", err)
	}
	if err := json.Unmarshal([]byte(actual), &got); err != nil {
		return fmt.Sprintf("invalid actual JSON: %v", err)
	}

	// gojsondiff compares objects only
	want = map[string]interface{}{"root": want}
	got = map[string]interface{}{"root": got}

	ja.normalize(want, got)

	wantBytes, _ := json.Marshal(want)
	gotBytes, _ := json.Marshal(got)
	diff, err := gojsondiff.New().Compare(wantBytes, gotBytes)
	if err != nil {
		return fmt.Sprintf("JSON comparison failed: %v", err)
	}
	if !diff.Modified() {
		return ""
	}
	f := formatter.NewAsciiFormatter(want, formatter.AsciiFormatterConfig{ShowArrayIndex: true})
	out, _ := f.Format(diff)
	return out
}

// normalize rewrites both trees in place. Ignored fields go first so that they do
// not influence the array order.
func (ja *JSONAsserter) normalize(want, got interface{}) {
	for _, field := range ja.options.IgnoredFields {
		dropKey(want, field)
		dropKey(got, field)
	}
	if ja.options.IgnoreArrayOrder {
		sortArrays(want)
		sortArrays(got)
	}
	ja.align(want, got)
}

// align resolves presence placeholders and prunes keys not expected.
func (ja *JSONAsserter) align(want, got interface{}) {
	switch w := want.(type) {
	case map[string]interface{}:
		g, ok := got.(map[string]interface{})
		if !ok {
			return
		}
		for k, v := range w {
			if s, ok := v.(string); ok && s == PresencePlaceholder {
				if gv, present := g[k]; present {
					w[k] = gv
				}
				continue
			}
			ja.align(v, g[k])
		}
		if ja.options.IgnoreExtraKeys {
			for k := range g {
				if _, expected := w[k]; !expected {
					delete(g, k)
				}
			}
		}
	case []interface{}:
		g, ok := got.([]interface{})
		if !ok {
			return
		}
		for i := range w {
			if i < len(g) {
				ja.align(w[i], g[i])
			}
		}
	}
}

func dropKey(v interface{}, key string) {
	switch t := v.(type) {
	case map[string]interface{}:
		delete(t, key)
		for _, child := range t {
			dropKey(child, key)
		}
	case []interface{}:
		for _, child := range t {
			dropKey(child, key)
		}
	}
}

// sortArrays orders every array by the JSON encoding of its elements.
func sortArrays(v interface{}) {
	switch t := v.(type) {
	case map[string]interface{}:
		for _, child := range t {
			sortArrays(child)
		}
	case []interface{}:
		for _, child := range t {
			sortArrays(child)
		}
		sort.SliceStable(t, func(i, j int) bool {
			a, _ := json.Marshal(t[i])
			b, _ := json.Marshal(t[j])
			return string(a) < string(b)
		})
	}
}

// WithIgnoreExtraKeys ignores actual keys that the expected document does not name.
func WithIgnoreExtraKeys(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreExtraKeys = ignore }
}

// WithIgnoreArrayOrder compares arrays as multisets.
func WithIgnoreArrayOrder(ignore bool) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoreArrayOrder = ignore }
}

// WithIgnoredFields drops the named keys at any depth from both documents.
func WithIgnoredFields(fields ...string) JSONOption {
	return func(o *JSONAssertOptions) { o.IgnoredFields = fields }
}
