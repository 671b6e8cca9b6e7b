package form

import "fmt"

// DimensionEntry is the filled content of one dimension axis: the name
// the values were recorded under (the dimension itself, or the chosen
// hierarchy branch of a multi-hierarchy dimension) and the raw values.
type DimensionEntry struct {
	Key    string
	Values []string
}

func (f *Form) dimensions() *Node {
	n, _ := f.Root.Field(FieldDimensions)
	return n
}

// AddDimensionValues appends values to a dimension axis. The key may be a
// dimension name or, for multi-hierarchy dimensions, a hierarchy name.
// Duplicate values are ignored.
func (f *Form) AddDimensionValues(key string, values ...string) error {
	dims := f.dimensions()
	if dims == nil {
		return fmt.Errorf("%w: %s", ErrUnknownField, FieldDimensions)
	}

	if leaf, ok := dims.Field(key); ok && leaf.Kind == KindLeaf {
		appendUnique(leaf, values)
		return nil
	}
	for i := range dims.Fields {
		n := dims.Fields[i].Node
		if n.Kind != KindDisjunctive {
			continue
		}
		for _, alt := range n.Alternatives {
			if leaf, ok := alt.Field(key); ok {
				appendUnique(leaf, values)
				return nil
			}
		}
	}
	return fmt.Errorf("%w: dimension %q", ErrUnknownField, key)
}

func appendUnique(leaf *Node, values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		seen := false
		for _, existing := range leaf.List {
			if existing == v {
				seen = true
				break
			}
		}
		if !seen {
			leaf.List = append(leaf.List, v)
		}
	}
}

// DimensionEntries returns every filled dimension axis in declaration
// order. Blank axes and blank sibling branches are omitted.
func (f *Form) DimensionEntries() []DimensionEntry {
	dims := f.dimensions()
	if dims == nil {
		return nil
	}
	var entries []DimensionEntry
	for _, field := range dims.Fields {
		switch field.Node.Kind {
		case KindLeaf:
			if !field.Node.Blank() {
				entries = append(entries, DimensionEntry{Key: field.Name, Values: field.Node.List})
			}
		case KindDisjunctive:
			for _, alt := range field.Node.Alternatives {
				for _, branch := range alt.Fields {
					if !branch.Node.Blank() {
						entries = append(entries, DimensionEntry{Key: branch.Name, Values: branch.Node.List})
					}
				}
			}
		}
	}
	return entries
}

// SetMeasures replaces the selected measures.
func (f *Form) SetMeasures(measures []string) {
	if leaf, ok := f.Root.Field(FieldMeasures); ok {
		leaf.List = append([]string(nil), measures...)
	}
}

// Measures returns the selected measures.
func (f *Form) Measures() []string {
	leaf, ok := f.Root.Field(FieldMeasures)
	if !ok {
		return nil
	}
	return leaf.List
}

// Scalar returns the value of a top-level scalar field (limit, sort,
// locale).
func (f *Form) Scalar(name string) string {
	leaf, ok := f.Root.Field(name)
	if !ok || leaf.Kind != KindLeaf || leaf.IsList {
		return ""
	}
	return leaf.Scalar
}

// SetScalar sets a top-level scalar field.
func (f *Form) SetScalar(name, value string) error {
	leaf, ok := f.Root.Field(name)
	if !ok || leaf.Kind != KindLeaf || leaf.IsList {
		return fmt.Errorf("%w: %q", ErrUnknownField, name)
	}
	leaf.Scalar = value
	return nil
}
