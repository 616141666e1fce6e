package output

import (
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats output as YAML. Field names follow the json tags of
// data, so both formats show the same keys.
type YAMLFormatter struct{}

func (f *YAMLFormatter) Format(data interface{}) (string, error) {
	generic, err := toGeneric(data)
	if err != nil {
		return "", err
	}
	b, err := yaml.Marshal(generic)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (f *YAMLFormatter) FormatTable(headers []string, rows [][]string) (string, error) {
	return f.Format(records(headers, rows))
}

// toGeneric round-trips data through JSON so yaml sees maps keyed by the json
// field names.
func toGeneric(data interface{}) (interface{}, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
