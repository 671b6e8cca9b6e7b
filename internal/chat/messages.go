package chat

import (
	"fmt"
	"strings"

	"github.com/datales/cubechat/internal/form"
	"github.com/datales/cubechat/internal/resolver"
	"github.com/datales/cubechat/internal/schema"
)

func deflectionMessage() string {
	return "I can only help with questions about the available datasets. " +
		"Ask me about the data and I will build the query for you."
}

func noCubeMessage() string {
	return "I could not find a dataset that covers that question. " +
		"Try asking about a different topic, or rephrase the question."
}

func noDataMessage(problem string) string {
	return fmt.Sprintf("I built the query but got no data back (%s). "+
		"You may want to loosen a filter or pick a different time range.", problem)
}

func answerMessage(summary *QuerySummary, rows int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Here is the data from %s", summary.Cube)
	if len(summary.Measures) > 0 {
		fmt.Fprintf(&b, ", showing %s", strings.Join(summary.Measures, ", "))
	}
	if len(summary.Drilldowns) > 0 {
		fmt.Fprintf(&b, " by %s", strings.Join(summary.Drilldowns, ", "))
	}
	if summary.Cuts != "" {
		fmt.Fprintf(&b, " (filtered to %s)", summary.Cuts)
	}
	fmt.Fprintf(&b, ". %d rows returned.", rows)
	return b.String()
}

// clarificationMessage consolidates every blank required field into one
// question, with example members so the user knows what kind of value
// fits each dimension.
func (r *Router) clarificationMessage(cube *schema.Cube, missing []form.Missing) string {
	var needs []string
	for _, m := range missing {
		switch {
		case m.Path[0] == form.FieldMeasures:
			needs = append(needs, fmt.Sprintf("which measure to show (available: %s)",
				strings.Join(cube.MeasureNames(), ", ")))
		case m.Path[0] == form.FieldDimensions:
			needs = append(needs, r.dimensionNeed(cube, m.Field))
		default:
			needs = append(needs, fmt.Sprintf("a value for %s", m.Field))
		}
	}
	return fmt.Sprintf("To run this query against %s I still need: %s. "+
		"You can also answer \"all\" to include every value of a dimension.",
		cube.Name, strings.Join(needs, "; "))
}

func (r *Router) dimensionNeed(cube *schema.Cube, field string) string {
	samples := r.memberSamples(cube, field)
	if len(samples) == 0 {
		return fmt.Sprintf("a value for %s", field)
	}
	return fmt.Sprintf("a value for %s (e.g. %s)", field, strings.Join(samples, ", "))
}

// memberSamples returns up to MemberSamples example members from the
// most granular level reachable from the given axis name.
func (r *Router) memberSamples(cube *schema.Cube, field string) []string {
	levels, err := cube.DimensionLevels(field)
	if err != nil || len(levels) == 0 {
		return nil
	}
	members, err := cube.Members(levels[len(levels)-1])
	if err != nil {
		return nil
	}
	var samples []string
	for _, m := range members {
		if len(samples) >= r.cfg.MemberSamples {
			break
		}
		samples = append(samples, m.Name)
	}
	return samples
}

func ambiguityMessage(ambiguities []resolver.Ambiguity) string {
	var parts []string
	for _, a := range ambiguities {
		parts = append(parts, fmt.Sprintf("%q (closest known value: %s in %s)",
			a.Constraint, a.Match.Label, a.Match.Level))
	}
	return fmt.Sprintf("I could not confidently match %s. "+
		"Please confirm or rephrase those values.", strings.Join(parts, "; "))
}
