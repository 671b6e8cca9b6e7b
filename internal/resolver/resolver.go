package resolver

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/similarity"
)

// TimeDimension is the designated time axis: time-range constraints are
// recognized against it and it is the default drilldown when a query
// selects none.
const TimeDimension = "Year"

// earliestYear is the sentinel lower bound used when a constraint only
// states an upper bound.
const earliestYear = 1970

// Time axes whose raw values pass straight through as cuts instead of
// going to entity resolution.
var passthroughAxes = map[string]bool{
	"Year":           true,
	"Month":          true,
	"Quarter":        true,
	"Month and Year": true,
	"Time":           true,
}

// Ambiguity is a constraint whose best member match scored below the
// configured similarity floor. It is surfaced for clarification instead
// of being silently accepted.
type Ambiguity struct {
	Constraint string
	Match      similarity.Match
}

// Resolver resolves raw constraints against a cube catalog entry.
type Resolver struct {
	members       similarity.MemberResolver
	logger        *zap.Logger
	minSimilarity float32
	now           func() time.Time
}

// Option configures the resolver.
type Option func(*Resolver)

// WithMinSimilarity sets the similarity floor below which member matches
// are surfaced as ambiguities instead of cuts. Zero (the default) keeps
// the historical always-accept-top-1 behavior.
func WithMinSimilarity(min float32) Option {
	return func(r *Resolver) { r.minSimilarity = min }
}

// WithClock overrides the clock used for the open-ended upper bound of
// ">= X" time constraints.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) { r.now = now }
}

// New creates a resolver backed by the given member resolver.
func New(members similarity.MemberResolver, logger *zap.Logger, opts ...Option) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Resolver{
		members: members,
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Result is the outcome of one resolution pass.
type Result struct {
	Query       *Query
	Ambiguities []Ambiguity
}

// Resolve turns raw constraints plus the requested drilldowns and
// measures into a canonical query against the cube.
//
// Time constraints on the designated time dimension are merged into a
// single interval and materialized as one cut per year, because the
// execution API only accepts discrete values. Other constraints go
// through entity resolution; a resolved cut with more than one member is
// promoted to a drilldown so the filtered values become a displayed
// axis.
func (r *Resolver) Resolve(ctx context.Context, cube *schema.Cube, constraints, drilldowns, measures []string) (*Result, error) {
	q := NewQuery(cube.Name)
	res := &Result{Query: q}

	// Requested drilldowns must name levels the cube actually has.
	valid := validLevels(cube)
	for _, d := range drilldowns {
		if valid[d] {
			q.AddDrilldown(d)
		} else {
			r.logger.Debug("dropping unknown drilldown", zap.String("level", d), zap.String("cube", cube.Name))
		}
	}
	q.AddMeasure(measures...)

	timeCuts, otherCuts := partition(constraints)

	r.resolveTimeCuts(q, timeCuts)

	for _, raw := range otherCuts {
		if err := r.resolveCut(ctx, cube, q, res, raw); err != nil {
			return nil, err
		}
	}

	// Promotion rule: a multi-valued filter must be broken out into its
	// own displayed axis. Single-valued cuts stay pure filters.
	for level, cuts := range q.Cuts() {
		if len(cuts) > 1 {
			q.AddDrilldown(level)
		}
	}

	if len(q.Drilldowns()) == 0 {
		q.AddDrilldown(TimeDimension)
	}
	if len(q.Measures()) == 0 {
		q.AddMeasure(cube.MeasureNames()...)
	}

	return res, nil
}

// partition splits constraints into time-interval constraints on the
// designated time dimension and everything else.
func partition(constraints []string) (timeCuts, otherCuts []string) {
	for _, raw := range constraints {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if isTimeConstraint(raw) {
			timeCuts = append(timeCuts, raw)
		} else {
			otherCuts = append(otherCuts, raw)
		}
	}
	return timeCuts, otherCuts
}

func isTimeConstraint(raw string) bool {
	name, value, op := splitConstraint(raw)
	if name != TimeDimension {
		return false
	}
	if op == ">=" || op == "<=" {
		return true
	}
	if strings.EqualFold(value, "all") {
		return true
	}
	if _, _, ok := parseYearRange(value); ok {
		return true
	}
	_, err := strconv.Atoi(value)
	return err == nil
}

// splitConstraint parses "name <op> value" where op is "=", ">=" or
// "<=". The name and value are trimmed.
func splitConstraint(raw string) (name, value, op string) {
	for _, candidate := range []string{">=", "<=", "="} {
		if idx := strings.Index(raw, candidate); idx >= 0 {
			return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+len(candidate):]), candidate
		}
	}
	return strings.TrimSpace(raw), "", ""
}

func parseYearRange(value string) (start, end int, ok bool) {
	parts := strings.SplitN(value, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	start, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	end, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return start, end, true
}

// resolveTimeCuts merges every time constraint into one running interval
// and emits a discrete cut per year.
func (r *Resolver) resolveTimeCuts(q *Query, timeCuts []string) {
	var (
		start, end int
		tracked    bool
	)

	for _, raw := range timeCuts {
		_, value, op := splitConstraint(raw)
		switch {
		case strings.EqualFold(value, "all"):
			// No interval restriction; the time axis itself is displayed.
			q.AddDrilldown(TimeDimension)

		case op == ">=":
			year, err := strconv.Atoi(value)
			if err != nil {
				r.logger.Warn("unparseable time constraint", zap.String("constraint", raw))
				continue
			}
			if tracked {
				start = max(start, year)
			} else {
				start, end, tracked = year, r.now().Year(), true
			}

		case op == "<=":
			year, err := strconv.Atoi(value)
			if err != nil {
				r.logger.Warn("unparseable time constraint", zap.String("constraint", raw))
				continue
			}
			if tracked {
				end = min(end, year)
			} else {
				start, end, tracked = earliestYear, year, true
			}

		default:
			if lo, hi, ok := parseYearRange(value); ok {
				if tracked {
					start, end = max(start, lo), min(end, hi)
				} else {
					start, end, tracked = lo, hi, true
				}
				continue
			}
			year, err := strconv.Atoi(value)
			if err != nil {
				r.logger.Warn("unparseable time constraint", zap.String("constraint", raw))
				continue
			}
			if tracked {
				start, end = max(start, year), min(end, year)
			} else {
				start, end, tracked = year, year, true
			}
		}
	}

	if tracked {
		lo, hi := min(start, end), max(start, end)
		for y := lo; y <= hi; y++ {
			q.AddCut(TimeDimension, strconv.Itoa(y), strconv.Itoa(y))
		}
	}
}

// resolveCut resolves one non-interval constraint.
func (r *Resolver) resolveCut(ctx context.Context, cube *schema.Cube, q *Query, res *Result, raw string) error {
	name, value, _ := splitConstraint(raw)
	if name == "" || value == "" {
		r.logger.Warn("skipping malformed constraint", zap.String("constraint", raw))
		return nil
	}

	// "All" selects the most granular level of the dimension as a
	// drilldown instead of filtering.
	if strings.EqualFold(value, "all") {
		levels, err := cube.DimensionLevels(name)
		if err != nil {
			r.logger.Warn("constraint names unknown dimension",
				zap.String("constraint", raw), zap.String("cube", cube.Name))
			return nil
		}
		q.AddDrilldown(levels[len(levels)-1])
		return nil
	}

	// Non-lookup time axes pass straight through.
	if passthroughAxes[name] {
		q.AddCut(name, value, value)
		return nil
	}

	levels, err := cube.DimensionLevels(name)
	if err != nil {
		r.logger.Warn("constraint names unknown dimension",
			zap.String("constraint", raw), zap.String("cube", cube.Name))
		return nil
	}

	match, err := r.members.ResolveMember(ctx, value, cube.Name, levels)
	if err != nil {
		return fmt.Errorf("resolve member for %q: %w", raw, err)
	}

	if r.minSimilarity > 0 && match.Score < r.minSimilarity {
		res.Ambiguities = append(res.Ambiguities, Ambiguity{Constraint: raw, Match: *match})
		r.logger.Info("member match below similarity floor",
			zap.String("constraint", raw),
			zap.String("match", match.Label),
			zap.Float32("score", match.Score),
		)
		return nil
	}

	// The extraction step may name a parent dimension while the match
	// lands on a specific child level; display the resolved level
	// instead of the parent.
	if match.Level != name {
		q.RemoveDrilldown(name)
		q.AddDrilldown(match.Level)
	}

	q.AddCut(match.Level, match.MemberID, match.Label)
	return nil
}

func validLevels(cube *schema.Cube) map[string]bool {
	valid := make(map[string]bool)
	for _, d := range cube.Dimensions {
		for _, h := range d.Hierarchies {
			for _, l := range h.Levels {
				valid[l.Name] = true
				if l.UniqueName != "" {
					valid[l.UniqueName] = true
				}
			}
		}
	}
	return valid
}
