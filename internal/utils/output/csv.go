package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/law-makers/planscrape/pkg/models"
)

// Formats accepted by Write.
const (
	FormatJSON = "json"
	FormatCSV  = "csv"
)

// Write renders v in the named format.
func Write(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case "", FormatJSON:
		return WriteJSON(w, v)
	case FormatCSV:
		rows, err := Rows(v)
		if err != nil {
			return err
		}
		return WriteCSV(w, rows)
	}
	return fmt.Errorf("unsupported output format %q", format)
}

// WriteCSV writes rows under a sorted header holding every key seen.
// uid and authority lead when present.
func WriteCSV(w io.Writer, rows []map[string]string) error {
	writer := csv.NewWriter(w)

	seen := make(map[string]bool)
	var headers []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				headers = append(headers, k)
			}
		}
	}
	sort.Slice(headers, func(i, j int) bool {
		ri, rj := rank(headers[i]), rank(headers[j])
		if ri != rj {
			return ri < rj
		}
		return headers[i] < headers[j]
	})

	if len(headers) > 0 {
		if err := writer.Write(headers); err != nil {
			return err
		}
	}
	for _, item := range rows {
		row := make([]string, len(headers))
		for i, h := range headers {
			row[i] = item[h]
		}
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func rank(h string) int {
	switch h {
	case "uid":
		return 0
	case "authority":
		return 1
	}
	return 2
}

// Rows flattens an operation result into CSV rows. Batches give one row per
// id record, fetch results one row for the record. Anything else goes
// through its JSON form: an object becomes one row, an array one row per
// element, and nested values are kept as JSON text.
func Rows(v any) ([]map[string]string, error) {
	switch t := v.(type) {
	case models.Batch:
		if t.ScrapeError != "" && len(t.Result) == 0 {
			return []map[string]string{{"scrape_error": t.ScrapeError}}, nil
		}
		rows := make([]map[string]string, 0, len(t.Result))
		for _, r := range t.Result {
			row := make(map[string]string, len(r.Extra)+2)
			for k, val := range r.Extra {
				row[k] = val
			}
			row["uid"] = r.UID
			row["authority"] = r.Authority
			rows = append(rows, row)
		}
		return rows, nil
	case models.FetchResult:
		if t.ScrapeError != "" {
			return []map[string]string{{"scrape_error": t.ScrapeError}}, nil
		}
		return []map[string]string{t.Record.Clone()}, nil
	case []string:
		rows := make([]map[string]string, len(t))
		for i, s := range t {
			rows[i] = map[string]string{"name": s}
		}
		return rows, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var list []json.RawMessage
	if json.Unmarshal(raw, &list) == nil {
		rows := make([]map[string]string, 0, len(list))
		for _, item := range list {
			rows = append(rows, flatten(item))
		}
		return rows, nil
	}
	return []map[string]string{flatten(raw)}, nil
}

func flatten(raw json.RawMessage) map[string]string {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]string{"value": strings.Trim(string(raw), `"`)}
	}
	row := make(map[string]string, len(fields))
	for k, val := range fields {
		var s string
		if json.Unmarshal(val, &s) == nil {
			row[k] = s
			continue
		}
		if string(val) == "null" {
			row[k] = ""
			continue
		}
		row[k] = string(val)
	}
	return row
}
