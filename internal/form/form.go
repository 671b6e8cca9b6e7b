// Package form implements the accreting query-specification form built
// across conversation turns, and the completeness check that decides
// whether it can be executed.
//
// A form is a tree of tagged nodes: conjunctive containers (every field
// must be filled), disjunctive containers (one alternative must be
// filled, used for hierarchy choices inside a dimension) and leaves.
// Blank leaves use the empty string for scalars and the empty list for
// list leaves.
package form

import (
	"encoding/json"
	"fmt"

	"github.com/datales/cubechat/internal/schema"
)

// Common errors for form operations.
var (
	ErrMalformedNode  = fmt.Errorf("form node has an unknown shape")
	ErrShapeMismatch  = fmt.Errorf("forms do not share the same shape")
	ErrUnknownField   = fmt.Errorf("field not present in form")
)

// Kind tags the shape of a node.
type Kind int

const (
	// KindLeaf is a scalar or list value.
	KindLeaf Kind = iota
	// KindConjunctive is a mapping whose fields must all be filled.
	KindConjunctive
	// KindDisjunctive is a list of alternatives; filling any one of them
	// satisfies the node.
	KindDisjunctive
)

// Field is one named entry of a conjunctive node, kept in declaration
// order so traversal and reporting are deterministic.
type Field struct {
	Name string
	Node *Node
}

// Node is one node of the form tree.
type Node struct {
	Kind Kind

	// Conjunctive containers.
	Fields []Field

	// Disjunctive containers.
	Alternatives []*Node

	// Leaves. IsList selects between Scalar and List; Optional leaves are
	// never reported as missing.
	IsList   bool
	Scalar   string
	List     []string
	Optional bool
}

// NewScalarLeaf returns a scalar leaf holding the given value.
func NewScalarLeaf(v string) *Node {
	return &Node{Kind: KindLeaf, Scalar: v}
}

// NewListLeaf returns a list leaf holding the given values.
func NewListLeaf(vs ...string) *Node {
	return &Node{Kind: KindLeaf, IsList: true, List: append([]string(nil), vs...)}
}

// Blank reports whether a leaf holds the unset sentinel.
func (n *Node) Blank() bool {
	if n.Kind != KindLeaf {
		return false
	}
	if n.IsList {
		return len(n.List) == 0
	}
	return n.Scalar == ""
}

// Field returns the named field of a conjunctive node.
func (n *Node) Field(name string) (*Node, bool) {
	for i := range n.Fields {
		if n.Fields[i].Name == name {
			return n.Fields[i].Node, true
		}
	}
	return nil, false
}

// Clone returns a deep copy of the node.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Kind:     n.Kind,
		IsList:   n.IsList,
		Scalar:   n.Scalar,
		Optional: n.Optional,
	}
	if n.List != nil {
		out.List = append([]string(nil), n.List...)
	}
	for _, f := range n.Fields {
		out.Fields = append(out.Fields, Field{Name: f.Name, Node: f.Node.Clone()})
	}
	for _, alt := range n.Alternatives {
		out.Alternatives = append(out.Alternatives, alt.Clone())
	}
	return out
}

// Form is the specification being accreted for one query thread.
type Form struct {
	Cube string
	Root *Node
}

// Field names of the top-level conjunctive container.
const (
	FieldCube       = "cube"
	FieldDimensions = "dimensions"
	FieldMeasures   = "measures"
	FieldLimit      = "limit"
	FieldSort       = "sort"
	FieldLocale     = "locale"
)

// NewTemplate instantiates a blank form for the given cube. Dimensions
// with a single hierarchy become list leaves; dimensions with several
// hierarchies become disjunctive containers with one alternative per
// hierarchy. The trailing limit, sort and locale fields are optional and
// start blank.
func NewTemplate(cube *schema.Cube) *Form {
	dims := &Node{Kind: KindConjunctive}
	for i := range cube.Dimensions {
		d := &cube.Dimensions[i]
		if !d.MultiHierarchy() {
			dims.Fields = append(dims.Fields, Field{Name: d.Name, Node: NewListLeaf()})
			continue
		}
		disj := &Node{Kind: KindDisjunctive}
		for _, h := range d.Hierarchies {
			alt := &Node{Kind: KindConjunctive}
			alt.Fields = append(alt.Fields, Field{Name: h.Name, Node: NewListLeaf()})
			disj.Alternatives = append(disj.Alternatives, alt)
		}
		dims.Fields = append(dims.Fields, Field{Name: d.Name, Node: disj})
	}

	root := &Node{Kind: KindConjunctive}
	root.Fields = append(root.Fields,
		Field{Name: FieldCube, Node: NewScalarLeaf(cube.Name)},
		Field{Name: FieldDimensions, Node: dims},
		Field{Name: FieldMeasures, Node: NewListLeaf()},
		Field{Name: FieldLimit, Node: &Node{Kind: KindLeaf, Optional: true}},
		Field{Name: FieldSort, Node: &Node{Kind: KindLeaf, Optional: true}},
		Field{Name: FieldLocale, Node: &Node{Kind: KindLeaf, Optional: true}},
	)

	return &Form{Cube: cube.Name, Root: root}
}

// Clone returns a deep copy of the form.
func (f *Form) Clone() *Form {
	return &Form{Cube: f.Cube, Root: f.Root.Clone()}
}

// Merge overlays update on base and returns the merged form as a new
// tree. Only non-blank leaves of update overwrite; blank leaves keep the
// base value, so re-applying the same update is idempotent and a failed
// turn can discard the result without touching base.
func Merge(base, update *Form) (*Form, error) {
	if base.Cube != update.Cube {
		return nil, fmt.Errorf("%w: cube %q vs %q", ErrShapeMismatch, base.Cube, update.Cube)
	}
	root, err := mergeNode(base.Root, update.Root)
	if err != nil {
		return nil, err
	}
	return &Form{Cube: base.Cube, Root: root}, nil
}

func mergeNode(base, update *Node) (*Node, error) {
	if base.Kind != update.Kind {
		return nil, ErrShapeMismatch
	}
	switch base.Kind {
	case KindLeaf:
		if update.Blank() {
			return base.Clone(), nil
		}
		return update.Clone(), nil

	case KindConjunctive:
		if len(base.Fields) != len(update.Fields) {
			return nil, ErrShapeMismatch
		}
		out := &Node{Kind: KindConjunctive}
		for i := range base.Fields {
			if base.Fields[i].Name != update.Fields[i].Name {
				return nil, fmt.Errorf("%w: field %q vs %q", ErrShapeMismatch, base.Fields[i].Name, update.Fields[i].Name)
			}
			merged, err := mergeNode(base.Fields[i].Node, update.Fields[i].Node)
			if err != nil {
				return nil, err
			}
			out.Fields = append(out.Fields, Field{Name: base.Fields[i].Name, Node: merged})
		}
		return out, nil

	case KindDisjunctive:
		if len(base.Alternatives) != len(update.Alternatives) {
			return nil, ErrShapeMismatch
		}
		out := &Node{Kind: KindDisjunctive}
		for i := range base.Alternatives {
			merged, err := mergeNode(base.Alternatives[i], update.Alternatives[i])
			if err != nil {
				return nil, err
			}
			out.Alternatives = append(out.Alternatives, merged)
		}
		return out, nil

	default:
		return nil, fmt.Errorf("%w: kind %d", ErrMalformedNode, base.Kind)
	}
}

// wireNode converts a node to the serialized representation: conjunctive
// nodes become objects, disjunctive nodes become lists of single-key
// objects, list leaves become string lists and scalar leaves strings.
func wireNode(n *Node) (interface{}, error) {
	switch n.Kind {
	case KindLeaf:
		if n.IsList {
			if n.List == nil {
				return []string{}, nil
			}
			return n.List, nil
		}
		return n.Scalar, nil

	case KindConjunctive:
		obj := make(map[string]interface{}, len(n.Fields))
		for _, f := range n.Fields {
			v, err := wireNode(f.Node)
			if err != nil {
				return nil, err
			}
			obj[f.Name] = v
		}
		return obj, nil

	case KindDisjunctive:
		list := make([]interface{}, 0, len(n.Alternatives))
		for _, alt := range n.Alternatives {
			v, err := wireNode(alt)
			if err != nil {
				return nil, err
			}
			list = append(list, v)
		}
		return list, nil

	default:
		return nil, fmt.Errorf("%w: kind %d", ErrMalformedNode, n.Kind)
	}
}

// MarshalJSON serializes the form in the wire shape consumed by the
// execution adapter and returned to API clients.
func (f *Form) MarshalJSON() ([]byte, error) {
	v, err := wireNode(f.Root)
	if err != nil {
		return nil, err
	}
	return json.Marshal(v)
}

// FromWire parses a serialized form against the template of its cube.
// The template supplies the expected shape; values that do not fit it
// surface as ErrShapeMismatch rather than being coerced.
func FromWire(data []byte, cube *schema.Cube) (*Form, error) {
	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse form: %w", err)
	}
	tmpl := NewTemplate(cube)
	if err := fillFromWire(tmpl.Root, raw); err != nil {
		return nil, err
	}
	return tmpl, nil
}

func fillFromWire(n *Node, raw interface{}) error {
	switch n.Kind {
	case KindLeaf:
		switch v := raw.(type) {
		case nil:
			return nil
		case string:
			if n.IsList {
				if v != "" {
					n.List = []string{v}
				}
				return nil
			}
			n.Scalar = v
			return nil
		case []interface{}:
			if !n.IsList {
				return ErrShapeMismatch
			}
			for _, item := range v {
				s, ok := item.(string)
				if !ok {
					s = fmt.Sprintf("%v", item)
				}
				n.List = append(n.List, s)
			}
			return nil
		case float64:
			if n.IsList {
				return ErrShapeMismatch
			}
			n.Scalar = trimFloat(v)
			return nil
		default:
			return ErrShapeMismatch
		}

	case KindConjunctive:
		obj, ok := raw.(map[string]interface{})
		if !ok {
			return ErrShapeMismatch
		}
		for i := range n.Fields {
			v, present := obj[n.Fields[i].Name]
			if !present {
				continue
			}
			if err := fillFromWire(n.Fields[i].Node, v); err != nil {
				return fmt.Errorf("field %q: %w", n.Fields[i].Name, err)
			}
		}
		return nil

	case KindDisjunctive:
		list, ok := raw.([]interface{})
		if !ok {
			return ErrShapeMismatch
		}
		// Each element names one branch; match it to the alternative that
		// declares that field.
		for _, item := range list {
			obj, ok := item.(map[string]interface{})
			if !ok {
				return ErrShapeMismatch
			}
			for name, v := range obj {
				matched := false
				for _, alt := range n.Alternatives {
					if sub, ok := alt.Field(name); ok {
						if err := fillFromWire(sub, v); err != nil {
							return fmt.Errorf("branch %q: %w", name, err)
						}
						matched = true
						break
					}
				}
				if !matched {
					return fmt.Errorf("%w: branch %q", ErrUnknownField, name)
				}
			}
		}
		return nil

	default:
		return fmt.Errorf("%w: kind %d", ErrMalformedNode, n.Kind)
	}
}

func trimFloat(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%g", v)
}
