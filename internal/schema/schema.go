// Package schema provides the cube catalog for cubechat.
// It loads cube metadata (dimensions, hierarchies, levels, members and
// measures) from a static JSON document and exposes the lookups the
// resolver and the turn router need.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Common errors for catalog operations.
var (
	ErrCubeNotFound      = fmt.Errorf("cube not found in catalog")
	ErrDimensionNotFound = fmt.Errorf("dimension not found in cube")
	ErrLevelNotFound     = fmt.Errorf("level not found in cube")
)

// Member is one canonical member of a level.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Level is one rung of a hierarchy. UniqueName disambiguates levels whose
// display name collides across dimensions (e.g. two "Country" levels).
type Level struct {
	Name       string   `json:"name"`
	UniqueName string   `json:"unique_name,omitempty"`
	Members    []Member `json:"members,omitempty"`
}

// CanonicalName returns the unique name when the level declares one,
// otherwise the display name.
func (l *Level) CanonicalName() string {
	if l.UniqueName != "" {
		return l.UniqueName
	}
	return l.Name
}

// Hierarchy is an ordered list of levels, coarsest first.
type Hierarchy struct {
	Name   string  `json:"name"`
	Levels []Level `json:"levels"`
}

// Dimension groups one or more mutually substitutable hierarchies.
type Dimension struct {
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	DefaultHierarchy string      `json:"default_hierarchy,omitempty"`
	Hierarchies      []Hierarchy `json:"hierarchies"`
}

// MultiHierarchy reports whether the dimension offers a hierarchy choice.
func (d *Dimension) MultiHierarchy() bool {
	return len(d.Hierarchies) > 1
}

// Measure is a queryable value column of a cube.
type Measure struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Cube is one analytical dataset in the catalog.
type Cube struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	API         string      `json:"api,omitempty"`
	Dimensions  []Dimension `json:"dimensions"`
	Measures    []Measure   `json:"measures"`
}

// MeasureNames returns the declared measure names in order.
func (c *Cube) MeasureNames() []string {
	names := make([]string, 0, len(c.Measures))
	for _, m := range c.Measures {
		names = append(names, m.Name)
	}
	return names
}

// Dimension returns the dimension with the given name.
func (c *Cube) Dimension(name string) (*Dimension, error) {
	for i := range c.Dimensions {
		if c.Dimensions[i].Name == name {
			return &c.Dimensions[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q in cube %q", ErrDimensionNotFound, name, c.Name)
}

// DimensionLevels returns the canonical level names reachable from the
// given name. The name may be a dimension (all levels of its default
// hierarchy, or of its only hierarchy), a hierarchy, or a level; in the
// last case the whole owning hierarchy is returned so the entity resolver
// can still land on a sibling level.
func (c *Cube) DimensionLevels(name string) ([]string, error) {
	if dim, err := c.Dimension(name); err == nil {
		h := dim.defaultOrFirst()
		return levelNames(h), nil
	}

	for i := range c.Dimensions {
		for j := range c.Dimensions[i].Hierarchies {
			h := &c.Dimensions[i].Hierarchies[j]
			if h.Name == name {
				return levelNames(h), nil
			}
			for k := range h.Levels {
				if h.Levels[k].UniqueName == name || h.Levels[k].Name == name {
					return levelNames(h), nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %q in cube %q", ErrDimensionNotFound, name, c.Name)
}

func (d *Dimension) defaultOrFirst() *Hierarchy {
	if d.DefaultHierarchy != "" {
		for i := range d.Hierarchies {
			if d.Hierarchies[i].Name == d.DefaultHierarchy {
				return &d.Hierarchies[i]
			}
		}
	}
	return &d.Hierarchies[0]
}

func levelNames(h *Hierarchy) []string {
	names := make([]string, 0, len(h.Levels))
	for i := range h.Levels {
		names = append(names, h.Levels[i].CanonicalName())
	}
	return names
}

// Level resolves a level by name, trying unique names before display
// names so collisions across dimensions resolve deterministically.
func (c *Cube) Level(name string) (*Level, error) {
	for i := range c.Dimensions {
		for j := range c.Dimensions[i].Hierarchies {
			for k := range c.Dimensions[i].Hierarchies[j].Levels {
				l := &c.Dimensions[i].Hierarchies[j].Levels[k]
				if l.UniqueName == name {
					return l, nil
				}
			}
		}
	}
	for i := range c.Dimensions {
		for j := range c.Dimensions[i].Hierarchies {
			for k := range c.Dimensions[i].Hierarchies[j].Levels {
				l := &c.Dimensions[i].Hierarchies[j].Levels[k]
				if l.Name == name {
					return l, nil
				}
			}
		}
	}
	return nil, fmt.Errorf("%w: %q in cube %q", ErrLevelNotFound, name, c.Name)
}

// Members returns the enumerable members of the named level.
func (c *Cube) Members(level string) ([]Member, error) {
	l, err := c.Level(level)
	if err != nil {
		return nil, err
	}
	return l.Members, nil
}

// OwningDimension returns the dimension and hierarchy that contain the
// named level.
func (c *Cube) OwningDimension(level string) (*Dimension, *Hierarchy, error) {
	l, err := c.Level(level)
	if err != nil {
		return nil, nil, err
	}
	for i := range c.Dimensions {
		for j := range c.Dimensions[i].Hierarchies {
			for k := range c.Dimensions[i].Hierarchies[j].Levels {
				if &c.Dimensions[i].Hierarchies[j].Levels[k] == l {
					return &c.Dimensions[i], &c.Dimensions[i].Hierarchies[j], nil
				}
			}
		}
	}
	return nil, nil, fmt.Errorf("%w: %q in cube %q", ErrLevelNotFound, level, c.Name)
}

// SchemaDescription renders a one-cube summary used when asking the model
// to pick a cube.
func (c *Cube) SchemaDescription() string {
	dims := make([]string, 0, len(c.Dimensions))
	for _, d := range c.Dimensions {
		desc := d.Description
		if desc == "" {
			desc = "No description"
		}
		dims = append(dims, fmt.Sprintf("%s (%s)", d.Name, desc))
	}
	measures := make([]string, 0, len(c.Measures))
	for _, m := range c.Measures {
		detail := m.Annotations["details"]
		if detail == "" {
			detail = "No description"
		}
		measures = append(measures, fmt.Sprintf("%s (%s)", m.Name, detail))
	}
	return fmt.Sprintf("Table Name: %s\nDescription: %s\nDimensions: %s\nMeasures: %s\n",
		c.Name, c.Description, strings.Join(dims, ", "), strings.Join(measures, ", "))
}

// ColumnsDescription renders the dimensions (with their level names) and
// measures of the cube for the component-extraction prompt.
func (c *Cube) ColumnsDescription() string {
	var b strings.Builder
	b.WriteString("Dimensions:\n")
	for _, d := range c.Dimensions {
		h := d.defaultOrFirst()
		desc := d.Description
		if desc == "" {
			desc = "No description"
		}
		fmt.Fprintf(&b, "%s (%s) [Levels: %s];\n", d.Name, desc, strings.Join(levelNamesDisplay(h), ", "))
	}
	b.WriteString("\nMeasures:\n")
	for _, m := range c.Measures {
		detail := m.Annotations["details"]
		if detail == "" {
			detail = "No description"
		}
		fmt.Fprintf(&b, "%s (%s);\n", m.Name, detail)
	}
	return b.String()
}

func levelNamesDisplay(h *Hierarchy) []string {
	names := make([]string, 0, len(h.Levels))
	for i := range h.Levels {
		names = append(names, h.Levels[i].Name)
	}
	return names
}

// Manager loads and serves the cube catalog.
type Manager struct {
	cubes []Cube
	mu    sync.RWMutex
}

type catalogDocument struct {
	Cubes []Cube `json:"cubes"`
}

// NewManager loads the catalog from the given JSON document.
func NewManager(path string) (*Manager, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return NewManagerFromBytes(data)
}

// NewManagerFromBytes loads the catalog from raw JSON.
func NewManagerFromBytes(data []byte) (*Manager, error) {
	var doc catalogDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(doc.Cubes) == 0 {
		return nil, fmt.Errorf("catalog declares no cubes")
	}
	return &Manager{cubes: doc.Cubes}, nil
}

// Cube returns a cube by name.
func (m *Manager) Cube(name string) (*Cube, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i := range m.cubes {
		if m.cubes[i].Name == name {
			return &m.cubes[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrCubeNotFound, name)
}

// ListCubes returns the names of every cube in the catalog.
func (m *Manager) ListCubes() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.cubes))
	for i := range m.cubes {
		names = append(names, m.cubes[i].Name)
	}
	return names
}

// Cubes returns every cube in the catalog.
func (m *Manager) Cubes() []*Cube {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Cube, 0, len(m.cubes))
	for i := range m.cubes {
		out = append(out, &m.cubes[i])
	}
	return out
}

// Schemas renders the schema descriptions of the named cubes, or of the
// whole catalog when names is nil.
func (m *Manager) Schemas(names []string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var parts []string
	for i := range m.cubes {
		if names == nil || contains(names, m.cubes[i].Name) {
			parts = append(parts, m.cubes[i].SchemaDescription())
		}
	}
	return strings.Join(parts, "\n\n")
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
