// Package catalog ships a built-in library of seed templates: small
// starter habits users can plant without writing their own anchor and
// action from scratch.
package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

//go:embed default.toml
var defaultCatalog []byte

// Template is one suggested seed.
type Template struct {
	Slug     string `toml:"slug"`
	Title    string `toml:"title"`
	Anchor   string `toml:"anchor"`
	Action   string `toml:"action"`
	Category string `toml:"category"`
}

// Catalog is a loaded set of templates.
type Catalog struct {
	Templates []Template `toml:"template"`
}

// Load parses the embedded default catalog.
func Load() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// Parse decodes a TOML catalog document.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	for i, t := range c.Templates {
		if t.Slug == "" {
			return nil, fmt.Errorf("template %d: slug is required", i)
		}
		if t.Title == "" || t.Action == "" {
			return nil, fmt.Errorf("template %q: title and action are required", t.Slug)
		}
	}
	return &c, nil
}

// Find returns the template with the given slug.
func (c *Catalog) Find(slug string) (Template, bool) {
	for _, t := range c.Templates {
		if t.Slug == slug {
			return t, true
		}
	}
	return Template{}, false
}

// Categories returns the distinct categories in sorted order.
func (c *Catalog) Categories() []string {
	seen := make(map[string]bool)
	var out []string
	for _, t := range c.Templates {
		cat := t.Category
		if cat == "" {
			cat = "general"
		}
		if !seen[cat] {
			seen[cat] = true
			out = append(out, cat)
		}
	}
	sort.Strings(out)
	return out
}

// ByCategory returns templates in the given category.
func (c *Catalog) ByCategory(category string) []Template {
	var out []Template
	for _, t := range c.Templates {
		cat := t.Category
		if cat == "" {
			cat = "general"
		}
		if strings.EqualFold(cat, category) {
			out = append(out, t)
		}
	}
	return out
}
