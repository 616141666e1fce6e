// Package output renders CLI results as a table, JSON or YAML.
package output

import (
	"fmt"
	"os"
	"strings"
)

// Format names accepted by --output.
const (
	Table = "table"
	JSON  = "json"
	YAML  = "yaml"
)

// EnvOutput selects the default format when --output is not given.
const EnvOutput = "DEVBRIDGE_OUTPUT"

// Formatter renders structured data. Implementations are stateless.
type Formatter interface {
	// Format renders a struct, map or slice.
	Format(data interface{}) (string, error)

	// FormatTable renders rows under headers.
	FormatTable(headers []string, rows [][]string) (string, error)
}

// NewFormatter returns the formatter for format (case-insensitive).
func NewFormatter(format string) (Formatter, error) {
	switch strings.ToLower(format) {
	case JSON:
		return &JSONFormatter{Indent: true}, nil
	case YAML:
		return &YAMLFormatter{}, nil
	case Table, "":
		return &TableFormatter{NoColor: os.Getenv("NO_COLOR") == "1"}, nil
	default:
		return nil, fmt.Errorf("unknown output format: %s (valid: table, json, yaml)", format)
	}
}

// ResolveFormat picks the explicit flag, then EnvOutput, then table.
func ResolveFormat(flag string, lookupEnv func(string) (string, bool)) string {
	if flag != "" {
		return flag
	}
	if v, ok := lookupEnv(EnvOutput); ok && v != "" {
		return v
	}
	return Table
}

// records turns table rows into one map per row, keyed by header.
func records(headers []string, rows [][]string) []map[string]string {
	out := make([]map[string]string, 0, len(rows))
	for _, row := range rows {
		obj := make(map[string]string, len(headers))
		for i, h := range headers {
			if i < len(row) {
				obj[h] = row[i]
			} else {
				obj[h] = ""
			}
		}
		out = append(out, obj)
	}
	return out
}
