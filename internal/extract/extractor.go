package extract

import (
	"regexp"

	"github.com/law-makers/planscrape/internal/scrapeerr"
	"github.com/law-makers/planscrape/pkg/models"
)

// Substitution is one regex rewrite applied before matching, typically to
// repair markup a portal gets wrong.
type Substitution struct {
	Pattern *regexp.Regexp
	Replace string
}

// Sub builds a Substitution from a pattern string.
func Sub(pattern, replace string) Substitution {
	return Substitution{Pattern: regexp.MustCompile(pattern), Replace: replace}
}

func applySubs(s string, subs []Substitution) string {
	for _, sub := range subs {
		s = sub.Pattern.ReplaceAllString(s, sub.Replace)
	}
	return s
}

// Config is the extraction pipeline of one page type: an optional data
// block, the required fields, best-effort fields and a template recognising
// pages that are valid but hold no record.
type Config struct {
	AdjustHTML      []Substitution
	DataBlock       Template
	AdjustDataBlock []Substitution
	MinData         Template
	OptionalData    []Template
	InvalidFormat   Template
}

// Extract runs the HTML pipeline over html. Parse-level failures are
// returned as tagged scrapeerr errors: NO_DATA when the data block is
// missing, INVALID_FORMAT when the invalid-format template recognises the
// block and NO_DETAIL otherwise.
func (c *Config) Extract(html, baseURL string) (models.Record, error) {
	block, err := c.block(html, baseURL)
	if err != nil {
		return nil, err
	}

	rec, ok := c.MinData.Match(block, baseURL)
	if !ok {
		if c.InvalidFormat != nil {
			if _, bad := c.InvalidFormat.Match(block, baseURL); bad {
				return nil, scrapeerr.New(scrapeerr.InvalidFormat, nil)
			}
		}
		return nil, scrapeerr.New(scrapeerr.NoDetail, nil)
	}

	out := rec.Clone()
	for _, t := range c.OptionalData {
		if more, ok := t.Match(block, baseURL); ok {
			out.Merge(more)
		}
	}
	return out, nil
}

// ExtractAll runs the adjust and data block stages, then matches rows
// against the block. An empty result is not an error here; callers decide
// what an empty listing means.
func (c *Config) ExtractAll(html, baseURL string, rows ListTemplate) ([]models.Record, error) {
	block, err := c.block(html, baseURL)
	if err != nil {
		return nil, err
	}
	return rows.MatchAll(block, baseURL), nil
}

// block returns the adjusted data block of html, or NO_DATA.
func (c *Config) block(html, baseURL string) (string, error) {
	html = applySubs(html, c.AdjustHTML)

	block := html
	if c.DataBlock != nil {
		m, ok := c.DataBlock.Match(html, baseURL)
		if !ok {
			return "", scrapeerr.New(scrapeerr.NoData, nil)
		}
		if b, has := m[BlockKey]; has {
			block = b
		}
	}
	return applySubs(block, c.AdjustDataBlock), nil
}
