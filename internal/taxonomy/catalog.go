// Package taxonomy holds the closed catalog of conditional-element types and
// their presentation descriptors. The catalog is static reference data:
// loaded once at startup, never mutated by the pipeline.
package taxonomy

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"goalforge/internal/logging"
)

// DefaultTypeName is the catalog entry used when a lookup misses.
const DefaultTypeName = "Default"

// Field describes one form field rendered for a CE type.
type Field struct {
	Name  string `yaml:"name"`
	Label string `yaml:"label"`
	Type  string `yaml:"type"` // text, textarea, date, number
}

// TypeInfo is the catalog record for one CE type.
type TypeInfo struct {
	Name       string  `yaml:"name"`
	Definition string  `yaml:"definition"`
	Icon       string  `yaml:"icon"`
	Fields     []Field `yaml:"fields"`
}

// Resolution is the result of a catalog lookup. Fallback is true when the
// requested name missed and the Default entry was substituted; callers that
// care about the miss check the flag instead of comparing names.
type Resolution struct {
	Type     TypeInfo
	Fallback bool
}

// Catalog maps CE type names to their records.
type Catalog struct {
	types map[string]TypeInfo
}

// builtinTypes seed the catalog when no file is configured.
var builtinTypes = []TypeInfo{
	{
		Name:       DefaultTypeName,
		Definition: "A general conditional element with no specialized handling.",
		Icon:       "circle",
		Fields: []Field{
			{Name: "content", Label: "Description", Type: "textarea"},
		},
	},
	{
		Name:       "Research",
		Definition: "Information that must be gathered or verified before acting.",
		Icon:       "magnifying-glass",
		Fields: []Field{
			{Name: "content", Label: "Research question", Type: "textarea"},
			{Name: "source", Label: "Source", Type: "text"},
		},
	},
	{
		Name:       "Stakeholder",
		Definition: "A person or group whose involvement or approval is required.",
		Icon:       "people",
		Fields: []Field{
			{Name: "content", Label: "Stakeholder", Type: "text"},
			{Name: "role", Label: "Role", Type: "text"},
		},
	},
	{
		Name:       "Resource",
		Definition: "A material, tool, venue, or budget item that must be secured.",
		Icon:       "box",
		Fields: []Field{
			{Name: "content", Label: "Resource", Type: "text"},
			{Name: "quantity", Label: "Quantity", Type: "number"},
		},
	},
	{
		Name:       "Timeline",
		Definition: "A date or deadline constraint on the surrounding condition.",
		Icon:       "calendar",
		Fields: []Field{
			{Name: "content", Label: "Milestone", Type: "text"},
			{Name: "due", Label: "Due date", Type: "date"},
		},
	},
	{
		Name:       "Compliance",
		Definition: "A legal, regulatory, or policy requirement that must be met.",
		Icon:       "shield",
		Fields: []Field{
			{Name: "content", Label: "Requirement", Type: "textarea"},
			{Name: "authority", Label: "Authority", Type: "text"},
		},
	},
}

// Builtin returns the compiled-in catalog.
func Builtin() *Catalog {
	c := &Catalog{types: make(map[string]TypeInfo, len(builtinTypes))}
	for _, t := range builtinTypes {
		c.types[normalize(t.Name)] = t
	}
	return c
}

// Load reads a catalog from a YAML file. A missing file falls back to the
// built-in catalog; a malformed file is an error.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Taxonomy("catalog %s not found, using builtin types", path)
			return Builtin(), nil
		}
		return nil, fmt.Errorf("failed to read taxonomy catalog: %w", err)
	}

	var entries []TypeInfo
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("failed to parse taxonomy catalog: %w", err)
	}

	c := &Catalog{types: make(map[string]TypeInfo, len(entries)+1)}
	for _, t := range entries {
		if t.Name == "" {
			return nil, fmt.Errorf("taxonomy entry with empty name")
		}
		c.types[normalize(t.Name)] = t
	}
	// The Default entry must always exist for fallback resolution
	if _, ok := c.types[normalize(DefaultTypeName)]; !ok {
		c.types[normalize(DefaultTypeName)] = builtinTypes[0]
	}

	logging.Taxonomy("loaded %d taxonomy types from %s", len(c.types), path)
	return c, nil
}

// Lookup resolves a type name. Misses return the Default entry with the
// Fallback flag set; the catalog itself is never mutated.
func (c *Catalog) Lookup(name string) Resolution {
	if t, ok := c.types[normalize(name)]; ok {
		return Resolution{Type: t}
	}
	return Resolution{Type: c.types[normalize(DefaultTypeName)], Fallback: true}
}

// Names lists the catalog's type names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.types))
	for _, t := range c.types {
		names = append(names, t.Name)
	}
	sort.Strings(names)
	return names
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
