package resolver

import (
	"fmt"
	"strings"

	"github.com/datales/cubechat/internal/form"
	"github.com/datales/cubechat/internal/schema"
)

// FromForm flattens a completed form into the constraint, drilldown and
// measure lists Resolve consumes.
//
// Dimension values are stored raw in the form. A value that names a
// level of the cube is a drilldown request; anything else becomes a
// constraint on the axis it was recorded under, keeping a leading
// comparison operator when the value carries one (">= 2018").
func FromForm(cube *schema.Cube, f *form.Form) (constraints, drilldowns, measures []string) {
	for _, entry := range f.DimensionEntries() {
		for _, value := range entry.Values {
			if _, err := cube.Level(value); err == nil {
				drilldowns = append(drilldowns, value)
				continue
			}
			constraints = append(constraints, renderConstraint(entry.Key, value))
		}
	}
	return constraints, drilldowns, f.Measures()
}

func renderConstraint(key, value string) string {
	for _, op := range []string{">=", "<="} {
		if strings.HasPrefix(value, op) {
			return fmt.Sprintf("%s %s %s", key, op, strings.TrimSpace(strings.TrimPrefix(value, op)))
		}
	}
	return fmt.Sprintf("%s = %s", key, value)
}
