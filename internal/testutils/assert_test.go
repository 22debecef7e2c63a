package testutils

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

// recordingT captures reported failures.
type recordingT struct {
	failures []string
}

func (r *recordingT) Errorf(format string, args ...interface{}) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestTextAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []TextOption
		actual   string
		expected string
		match    bool
	}{
		{"identical", nil, "a\nb", "a\nb", true},
		{"trailing whitespace ignored by default", nil, "a  \nb\t", "a\nb", true},
		{"surrounding blank lines trimmed", nil, "\n\na\n", "a", true},
		{"changed line", nil, "a\nc", "a\nb", false},
		{"empty lines kept by default", nil, "a\n\nb", "a\nb", false},
		{"empty lines ignored on request", []TextOption{WithIgnoreEmptyLines(true)}, "a\n\nb", "a\nb", true},
		{"trailing whitespace significant on request", []TextOption{WithIgnoreTrailingWhitespace(false)}, "a \nb", "a\nb", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			got := NewTextAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)

			assert.Equal(t, tt.match, got)
			assert.Equal(t, !tt.match, len(rec.failures) == 1)
		})
	}
}

func TestTextAsserterDiff(t *testing.T) {
	diff := NewTextAsserter(t).Diff("name\nBattery", "name\nHeart")

	assert.Contains(t, diff, "--- expected")
	assert.Contains(t, diff, "-Heart")
	assert.Contains(t, diff, "+Battery")

	colored := NewTextAsserter(t).WithOptions(WithEnableColors(true)).Diff("a b", "a c")
	assert.Contains(t, colored, "a·b", "colored diffs MUST make whitespace visible")
}

func TestJSONAsserter(t *testing.T) {
	tests := []struct {
		name     string
		opts     []JSONOption
		actual   string
		expected string
		match    bool
	}{
		{"identical objects", nil, `{"a":1}`, `{"a":1}`, true},
		{"extra keys ignored", nil, `{"a":1,"b":2}`, `{"a":1}`, true},
		{"extra keys significant on request", []JSONOption{WithIgnoreExtraKeys(false)}, `{"a":1,"b":2}`, `{"a":1}`, false},
		{"value mismatch", nil, `{"a":1}`, `{"a":2}`, false},
		{"presence placeholder", nil, `{"id":"x","seen":"12:00"}`, `{"id":"x","seen":"<<PRESENCE>>"}`, true},
		{"presence placeholder requires key", nil, `{"id":"x"}`, `{"id":"x","seen":"<<PRESENCE>>"}`, false},
		{"root arrays in order", nil, `[{"id":"a"},{"id":"b"}]`, `[{"id":"a"},{"id":"b"}]`, true},
		{"root arrays out of order", nil, `[{"id":"b"},{"id":"a"}]`, `[{"id":"a"},{"id":"b"}]`, false},
		{"array order ignored on request", []JSONOption{WithIgnoreArrayOrder(true)}, `[{"id":"b"},{"id":"a"}]`, `[{"id":"a"},{"id":"b"}]`, true},
		{
			"ignored fields do not affect order",
			[]JSONOption{WithIgnoreArrayOrder(true), WithIgnoredFields("rssi")},
			`[{"id":"a","rssi":-40},{"id":"a","rssi":-90}]`,
			`[{"id":"a","rssi":-90},{"id":"a","rssi":-40}]`,
			true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingT{}
			got := NewJSONAsserter(rec).WithOptions(tt.opts...).Assert(tt.actual, tt.expected)

			assert.Equal(t, tt.match, got, "diff: %v", rec.failures)
		})
	}
}

func TestJSONAsserterInvalidInput(t *testing.T) {
	ja := NewJSONAsserter(t)

	assert.Contains(t, ja.Diff(`{`, `{}`), "invalid actual JSON")
	assert.Contains(t, ja.Diff(`{}`, `nope`), "invalid expected JSON")
}
