// Package taxonomy holds the fixed category → keyword mapping used to classify
// articles. A Taxonomy is immutable once built and safe for concurrent use.
package taxonomy

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultYAML []byte

// Category is a named bucket with its keyword set.
type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
}

// Taxonomy is an ordered, read-only set of categories.
type Taxonomy struct {
	categories []Category
	index      map[string]int
}

type document struct {
	Categories []Category `yaml:"categories"`
}

// New builds a taxonomy. Keywords are lower-cased, trimmed and de-duplicated
// keeping first-seen order; category order is preserved.
func New(categories []Category) (*Taxonomy, error) {
	t := &Taxonomy{
		categories: make([]Category, 0, len(categories)),
		index:      make(map[string]int, len(categories)),
	}

	for _, c := range categories {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("category with empty name")
		}
		if _, dup := t.index[name]; dup {
			return nil, fmt.Errorf("duplicate category %q", name)
		}

		seen := make(map[string]struct{}, len(c.Keywords))
		keywords := make([]string, 0, len(c.Keywords))
		for _, kw := range c.Keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw == "" {
				continue
			}
			if _, ok := seen[kw]; ok {
				continue
			}
			seen[kw] = struct{}{}
			keywords = append(keywords, kw)
		}

		t.index[name] = len(t.categories)
		t.categories = append(t.categories, Category{Name: name, Keywords: keywords})
	}

	return t, nil
}

// Parse builds a taxonomy from YAML.
func Parse(data []byte) (*Taxonomy, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing taxonomy: %w", err)
	}
	if len(doc.Categories) == 0 {
		return nil, fmt.Errorf("taxonomy has no categories")
	}
	return New(doc.Categories)
}

// Load reads a taxonomy YAML file.
func Load(path string) (*Taxonomy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading taxonomy: %w", err)
	}
	return Parse(data)
}

// Default returns the built-in news taxonomy.
func Default() *Taxonomy {
	t, err := Parse(defaultYAML)
	if err != nil {
		panic(fmt.Sprintf("embedded taxonomy is invalid: %v", err))
	}
	return t
}

// Resolve loads path, or the built-in taxonomy when path is empty.
func Resolve(path string) (*Taxonomy, error) {
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// Len returns the number of categories.
func (t *Taxonomy) Len() int { return len(t.categories) }

// Names returns category names in declaration order.
func (t *Taxonomy) Names() []string {
	names := make([]string, len(t.categories))
	for i, c := range t.categories {
		names[i] = c.Name
	}
	return names
}

// Has reports whether name is a known category.
func (t *Taxonomy) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Position returns the declaration index of a category, or -1.
func (t *Taxonomy) Position(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Keywords returns a copy of the keywords for a category.
func (t *Taxonomy) Keywords(name string) []string {
	i, ok := t.index[name]
	if !ok {
		return nil
	}
	return append([]string(nil), t.categories[i].Keywords...)
}

// Categories returns a deep copy of all categories.
func (t *Taxonomy) Categories() []Category {
	out := make([]Category, len(t.categories))
	for i, c := range t.categories {
		out[i] = Category{Name: c.Name, Keywords: append([]string(nil), c.Keywords...)}
	}
	return out
}

// Each calls fn for every category in order without copying keywords.
// fn must not retain or modify the keyword slice.
func (t *Taxonomy) Each(fn func(name string, keywords []string)) {
	for _, c := range t.categories {
		fn(c.Name, c.Keywords)
	}
}
