package parsers

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// parseText reads a plain text file verbatim.
func parseText(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", newParseError("txt", path, err)
	}
	return string(data), nil
}

// parseCSV converts delimited rows into one line of "header: value"
// pairs per record. The first row is treated as the header.
func parseCSV(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", newParseError("csv", path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return "", newParseError("csv", path, err)
	}
	if len(records) == 0 {
		return "", nil
	}

	headers := records[0]
	var rows []string
	for _, record := range records[1:] {
		var pairs []string
		for i, value := range record {
			if strings.TrimSpace(value) == "" {
				continue
			}
			if i < len(headers) {
				pairs = append(pairs, fmt.Sprintf("%s: %s", headers[i], value))
			} else {
				pairs = append(pairs, value)
			}
		}
		if len(pairs) > 0 {
			rows = append(rows, strings.Join(pairs, ", "))
		}
	}
	return strings.Join(rows, "\n"), nil
}

// parseJSON flattens a JSON document into "key path: value" lines.
func parseJSON(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", newParseError("json", path, err)
	}

	var parsed interface{}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", newParseError("json", path, err)
	}

	return strings.Join(flattenJSON(parsed, ""), "\n"), nil
}

func flattenJSON(value interface{}, prefix string) []string {
	var lines []string
	switch v := value.(type) {
	case map[string]interface{}:
		// Stable order so identical documents flatten identically.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, flattenJSON(v[k], fmt.Sprintf("%s%s: ", prefix, k))...)
		}
	case []interface{}:
		for i, item := range v {
			lines = append(lines, flattenJSON(item, fmt.Sprintf("%s[%d] ", prefix, i))...)
		}
	default:
		lines = append(lines, fmt.Sprintf("%s%v", prefix, v))
	}
	return lines
}
