package target

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// encode renders value in the given artifact type.
func encode(t Type, value any) ([]byte, error) {
	switch t {
	case Text:
		return []byte(asText(value)), nil
	case JSON:
		data, err := json.MarshalIndent(value, "", "  ")
		if err != nil {
			return nil, err
		}
		return append(data, '\n'), nil
	case CSV:
		rows, err := csvRows(value)
		if err != nil {
			return nil, err
		}
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.WriteAll(rows); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case YAML:
		return yaml.Marshal(value)
	case TOML:
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(value); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	}
	return nil, fmt.Errorf("unsupported target type %q", t)
}

// decode is the inverse of encode for the shapes targets are loaded back as.
func decode(t Type, data []byte) (any, error) {
	switch t {
	case Text:
		return string(data), nil
	case JSON:
		var v any
		if err := json.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case CSV:
		return csv.NewReader(bytes.NewReader(data)).ReadAll()
	case YAML:
		var v any
		if err := yaml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	case TOML:
		v := map[string]any{}
		if err := toml.Unmarshal(data, &v); err != nil {
			return nil, err
		}
		return v, nil
	}
	return nil, fmt.Errorf("unsupported target type %q", t)
}

func asText(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	}
	return fmt.Sprint(value)
}

// csvRows accepts a row matrix or a list of records. Records get a header
// row of their keys in sorted order.
func csvRows(value any) ([][]string, error) {
	switch v := value.(type) {
	case [][]string:
		return v, nil
	case [][]any:
		rows := make([][]string, len(v))
		for i, row := range v {
			rows[i] = make([]string, len(row))
			for j, cell := range row {
				rows[i][j] = asText(cell)
			}
		}
		return rows, nil
	case []map[string]string:
		records := make([]map[string]any, len(v))
		for i, r := range v {
			records[i] = make(map[string]any, len(r))
			for k, val := range r {
				records[i][k] = val
			}
		}
		return recordRows(records), nil
	case []map[string]any:
		return recordRows(v), nil
	case []any:
		records := make([]map[string]any, 0, len(v))
		for _, item := range v {
			r, ok := item.(map[string]any)
			if !ok {
				return nil, fmt.Errorf("CSV targets need rows or records, got element %T", item)
			}
			records = append(records, r)
		}
		return recordRows(records), nil
	}
	return nil, fmt.Errorf("CSV targets need rows or records, got %T", value)
}

func recordRows(records []map[string]any) [][]string {
	keySet := make(map[string]bool)
	for _, r := range records {
		for k := range r {
			keySet[k] = true
		}
	}
	header := make([]string, 0, len(keySet))
	for k := range keySet {
		header = append(header, k)
	}
	sort.Strings(header)

	rows := [][]string{header}
	for _, r := range records {
		row := make([]string, len(header))
		for i, k := range header {
			if v, ok := r[k]; ok {
				row[i] = asText(v)
			}
		}
		rows = append(rows, row)
	}
	return rows
}
