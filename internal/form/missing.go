package form

import (
	"fmt"
	"strconv"
	"strings"
)

// Missing identifies one blank leaf of a form: the path of field names
// and alternative indices from the root, and the name of the leaf field
// itself (the last path segment, or the index for unnamed leaves).
type Missing struct {
	Path  []string
	Field string
}

// Key renders the path as a human-readable clarification key, e.g.
// "dimensions:Geography:Exporter".
func (m Missing) Key() string {
	return strings.Join(m.Path, ":")
}

// FindMissing walks the form in post-order and returns every blank,
// required leaf that is not subsumed by a satisfied sibling branch.
//
// Completion propagates upward: a conjunctive node is satisfied once the
// completion count of its children equals its child count, a disjunctive
// node once any single alternative is fully satisfied. When a disjunctive
// node is satisfied, blanks recorded under its other alternatives are
// discarded rather than reported.
//
// An empty result means the form is complete and ready for execution.
func FindMissing(f *Form) ([]Missing, error) {
	_, missing, err := findMissing(f.Root, nil)
	return missing, err
}

func findMissing(n *Node, path []string) (satisfied bool, missing []Missing, err error) {
	if n == nil {
		return false, nil, fmt.Errorf("%w: nil node at %s", ErrMalformedNode, strings.Join(path, ":"))
	}

	switch n.Kind {
	case KindLeaf:
		if n.Blank() {
			if n.Optional {
				return true, nil, nil
			}
			field := ""
			if len(path) > 0 {
				field = path[len(path)-1]
			}
			return false, []Missing{{Path: append([]string(nil), path...), Field: field}}, nil
		}
		return true, nil, nil

	case KindConjunctive:
		completed := 0
		for i := range n.Fields {
			childPath := append(path, n.Fields[i].Name)
			ok, childMissing, err := findMissing(n.Fields[i].Node, childPath)
			if err != nil {
				return false, nil, err
			}
			if ok {
				completed++
			}
			missing = append(missing, childMissing...)
		}
		return completed == len(n.Fields), missing, nil

	case KindDisjunctive:
		for i := range n.Alternatives {
			childPath := append(path, strconv.Itoa(i))
			ok, childMissing, err := findMissing(n.Alternatives[i], childPath)
			if err != nil {
				return false, nil, err
			}
			if ok {
				// One alternative is fully resolved; blanks in sibling
				// branches are no longer missing.
				satisfied = true
			}
			missing = append(missing, childMissing...)
		}
		if satisfied {
			return true, nil, nil
		}
		return false, missing, nil

	default:
		return false, nil, fmt.Errorf("%w: kind %d at %s", ErrMalformedNode, n.Kind, strings.Join(path, ":"))
	}
}
