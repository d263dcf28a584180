package extract

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/law-makers/planscrape/internal/scrapeerr"
	urlutil "github.com/law-makers/planscrape/internal/utils/url"
	"github.com/law-makers/planscrape/pkg/models"
)

// JSONField maps a scalar found at Path to Key. When Template is set the
// value is substituted for every {{value}} placeholder in it instead of
// being assigned directly, e.g. to build a detail URL from a record id.
type JSONField struct {
	Key      string
	Path     []string
	Template string
}

// JSONConfig is the JSON counterpart of Config. DataBlock is a path into the
// decoded tree; numeric segments index arrays.
type JSONConfig struct {
	DataBlock     []string
	MinData       []JSONField
	OptionalData  []JSONField
	InvalidFormat []JSONField
}

// Extract applies the config to a decoded JSON value.
func (c *JSONConfig) Extract(v any, baseURL string) (models.Record, error) {
	block, ok := Lookup(v, c.DataBlock)
	if !ok || block == nil {
		return nil, scrapeerr.New(scrapeerr.NoData, nil)
	}
	return c.record(block, baseURL)
}

// ExtractAll treats the data block as an array and extracts one record per
// element. Elements missing required fields are skipped.
func (c *JSONConfig) ExtractAll(v any, baseURL string) ([]models.Record, error) {
	block, ok := Lookup(v, c.DataBlock)
	if !ok || block == nil {
		return nil, scrapeerr.New(scrapeerr.NoData, nil)
	}
	items, ok := block.([]any)
	if !ok {
		return nil, scrapeerr.Newf(scrapeerr.NoData, "data block at %s is not a list", strings.Join(c.DataBlock, "."))
	}
	out := make([]models.Record, 0, len(items))
	for _, item := range items {
		if rec, err := c.record(item, baseURL); err == nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (c *JSONConfig) record(block any, baseURL string) (models.Record, error) {
	rec, ok := matchFields(block, c.MinData, baseURL, true)
	if !ok {
		if len(c.InvalidFormat) > 0 {
			if _, bad := matchFields(block, c.InvalidFormat, baseURL, true); bad {
				return nil, scrapeerr.New(scrapeerr.InvalidFormat, nil)
			}
		}
		return nil, scrapeerr.New(scrapeerr.NoDetail, nil)
	}
	if more, _ := matchFields(block, c.OptionalData, baseURL, false); more != nil {
		rec.Merge(more)
	}
	return rec, nil
}

func matchFields(block any, fields []JSONField, baseURL string, required bool) (models.Record, bool) {
	rec := make(models.Record, len(fields))
	for _, f := range fields {
		raw, ok := Lookup(block, f.Path)
		s, scalar := Scalar(raw)
		if !ok || !scalar || strings.TrimSpace(s) == "" {
			if required {
				return nil, false
			}
			continue
		}
		if f.Template != "" {
			s = fillTemplate(f.Template, s)
		}
		if isURLKey(f.Key) {
			s = urlutil.ResolveURL(baseURL, s)
		}
		rec[f.Key] = s
	}
	return rec, true
}

var placeholders = []string{"{{value}}", "{{ value }}"}

func fillTemplate(tmpl, value string) string {
	for _, p := range placeholders {
		tmpl = strings.ReplaceAll(tmpl, p, value)
	}
	return tmpl
}

// Lookup walks path through nested objects and arrays.
func Lookup(v any, path []string) (any, bool) {
	cur := v
	for _, key := range path {
		switch node := cur.(type) {
		case map[string]any:
			next, ok := node[key]
			if !ok {
				return nil, false
			}
			cur = next
		case []any:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return nil, false
			}
			cur = node[i]
		default:
			return nil, false
		}
	}
	return cur, true
}

// Scalar renders a JSON leaf as a string. Objects, arrays and null are not
// scalars.
func Scalar(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}
