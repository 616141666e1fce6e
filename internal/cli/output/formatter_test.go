package output

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Name   string            `json:"name"`
	Nested map[string]string `json:"nested"`
	Tags   []string          `json:"tags"`
}

func TestNewFormatter(t *testing.T) {
	tests := []struct {
		format  string
		want    interface{}
		wantErr bool
	}{
		{"json", &JSONFormatter{}, false},
		{"JSON", &JSONFormatter{}, false},
		{"yaml", &YAMLFormatter{}, false},
		{"table", &TableFormatter{}, false},
		{"", &TableFormatter{}, false},
		{"xml", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.format, func(t *testing.T) {
			f, err := NewFormatter(tt.format)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.IsType(t, tt.want, f)
		})
	}
}

func TestResolveFormat(t *testing.T) {
	env := func(v string) func(string) (string, bool) {
		return func(string) (string, bool) { return v, v != "" }
	}
	assert.Equal(t, "yaml", ResolveFormat("yaml", env("json")))
	assert.Equal(t, "json", ResolveFormat("", env("json")))
	assert.Equal(t, Table, ResolveFormat("", env("")))
}

func TestJSONFormatterTable(t *testing.T) {
	f := &JSONFormatter{}
	out, err := f.FormatTable([]string{"NAME", "TYPE"}, [][]string{{"gh", "keyring"}, {"cu"}})
	require.NoError(t, err)
	assert.JSONEq(t, `[{"NAME":"gh","TYPE":"keyring"},{"NAME":"cu","TYPE":""}]`, out)
}

func TestYAMLFormatterUsesJSONNames(t *testing.T) {
	out, err := (&YAMLFormatter{}).Format(sample{Name: "x", Tags: []string{"a"}})
	require.NoError(t, err)
	assert.Contains(t, out, "name: x")
	assert.Contains(t, out, "- a")
	assert.NotContains(t, out, "Name:")
}

func TestTableFormatterFlattens(t *testing.T) {
	f := &TableFormatter{NoColor: true}
	out, err := f.Format(sample{Name: "x", Nested: map[string]string{"k": "v"}, Tags: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Contains(t, out, "KEY")
	assert.Contains(t, out, "name")
	assert.Contains(t, out, "nested.k")
	assert.Contains(t, out, "a,b")
}

func TestTableFormatterEmpty(t *testing.T) {
	out, err := (&TableFormatter{NoColor: true}).FormatTable([]string{"A"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "No results found\n", out)
}
