// Package chat routes dialogue turns: it classifies each user message,
// accretes the query form for the active question, asks for what is
// still missing and executes the query once the form is complete.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/execution"
	"github.com/datales/cubechat/internal/extraction"
	"github.com/datales/cubechat/internal/form"
	"github.com/datales/cubechat/internal/metrics"
	"github.com/datales/cubechat/internal/resolver"
	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/session"
	"github.com/datales/cubechat/internal/similarity"
)

// ErrEmptyMessage indicates the turn carried no user text.
var ErrEmptyMessage = errors.New("message cannot be empty")

// Status describes the outcome of one turn.
type Status string

const (
	// StatusAnswer means the query executed and data came back.
	StatusAnswer Status = "answer"
	// StatusClarification means the form is incomplete or ambiguous and
	// the message asks the user for the missing pieces.
	StatusClarification Status = "clarification"
	// StatusDeflection means the message was not a data question.
	StatusDeflection Status = "deflection"
	// StatusNoData means no cube covers the question or the query
	// returned nothing.
	StatusNoData Status = "no_data"
)

// QuerySummary is the resolved query echoed back with an answer.
type QuerySummary struct {
	Cube       string   `json:"cube"`
	Drilldowns []string `json:"drilldowns"`
	Measures   []string `json:"measures"`
	Cuts       string   `json:"cuts,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// Response is the outcome of one processed turn.
type Response struct {
	SessionID string            `json:"session_id"`
	Status    Status            `json:"status"`
	Message   string            `json:"message"`
	Cube      string            `json:"cube,omitempty"`
	Query     *QuerySummary     `json:"query,omitempty"`
	Result    *execution.Result `json:"result,omitempty"`
}

// Config holds turn router settings.
type Config struct {
	// CandidateCubes is the number of cubes retrieved before the model
	// picks one.
	CandidateCubes int `mapstructure:"candidate_cubes"`
	// TranscriptTurns bounds how much history the classifier reads.
	TranscriptTurns int `mapstructure:"transcript_turns"`
	// MemberSamples is how many example members a clarification shows
	// per missing dimension.
	MemberSamples int `mapstructure:"member_samples"`
}

// DefaultConfig returns the default router settings.
func DefaultConfig() Config {
	return Config{
		CandidateCubes:  3,
		TranscriptTurns: 12,
		MemberSamples:   5,
	}
}

// Router processes dialogue turns.
type Router struct {
	catalog  *schema.Manager
	cubes    similarity.CubeSearcher
	extract  *extraction.Service
	resolve  *resolver.Resolver
	exec     execution.Executor
	sessions session.Store
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      Config
}

// New creates a turn router.
func New(
	catalog *schema.Manager,
	cubes similarity.CubeSearcher,
	extract *extraction.Service,
	resolve *resolver.Resolver,
	exec execution.Executor,
	sessions session.Store,
	m *metrics.Metrics,
	logger *zap.Logger,
	cfg Config,
) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	if m == nil {
		m = metrics.Default()
	}
	if cfg.CandidateCubes <= 0 {
		cfg.CandidateCubes = 3
	}
	if cfg.TranscriptTurns <= 0 {
		cfg.TranscriptTurns = 12
	}
	if cfg.MemberSamples <= 0 {
		cfg.MemberSamples = 5
	}
	return &Router{
		catalog:  catalog,
		cubes:    cubes,
		extract:  extract,
		resolve:  resolve,
		exec:     exec,
		sessions: sessions,
		metrics:  m,
		logger:   logger,
		cfg:      cfg,
	}
}

// Respond processes one user message within a session. An empty session
// ID starts a new session.
func (r *Router) Respond(ctx context.Context, sessionID, message string) (*Response, error) {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil, ErrEmptyMessage
	}

	sess, err := r.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.AppendTurn(true, message)

	started := time.Now()
	cls, err := r.extract.Classify(ctx, r.transcript(sess))
	if err != nil {
		return nil, fmt.Errorf("classify turn: %w", err)
	}
	r.logger.Debug("turn classified",
		zap.String("session", sess.ID),
		zap.String("type", string(cls.Type)),
		zap.String("question", cls.Question),
	)

	resp, err := r.dispatch(ctx, sess, cls)
	if err != nil {
		r.metrics.RecordTurn(string(cls.Type), "error", time.Since(started).Seconds())
		return nil, err
	}

	sess.AppendTurn(false, resp.Message)
	if err := r.sessions.Save(ctx, sess); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	resp.SessionID = sess.ID
	r.metrics.RecordTurn(string(cls.Type), string(resp.Status), time.Since(started).Seconds())
	return resp, nil
}

func (r *Router) loadSession(ctx context.Context, id string) (*session.Session, error) {
	if id == "" {
		return r.sessions.Create(ctx)
	}
	return r.sessions.Get(ctx, id)
}

func (r *Router) transcript(sess *session.Session) string {
	turns := sess.Turns
	if len(turns) > r.cfg.TranscriptTurns {
		turns = turns[len(turns)-r.cfg.TranscriptTurns:]
	}
	out := make([]extraction.Turn, 0, len(turns))
	for _, t := range turns {
		out = append(out, extraction.Turn{FromUser: t.FromUser, Content: t.Content})
	}
	return extraction.RenderTranscript(out)
}

func (r *Router) dispatch(ctx context.Context, sess *session.Session, cls *extraction.Classification) (*Response, error) {
	switch cls.Type {
	case extraction.TurnNotAQuery:
		return &Response{Status: StatusDeflection, Message: deflectionMessage()}, nil

	case extraction.TurnComplementary:
		if sess.Cube != "" && sess.FormState != nil {
			cube, err := r.catalog.Cube(sess.Cube)
			if err != nil {
				// Catalog changed underneath the session; start over.
				r.logger.Warn("session cube vanished from catalog", zap.String("cube", sess.Cube))
				sess.ResetQuery()
				return r.startQuestion(ctx, sess, cls.Question)
			}
			base, err := form.FromWire(sess.FormState, cube)
			if err != nil {
				return nil, fmt.Errorf("restore form: %w", err)
			}
			return r.continueQuestion(ctx, sess, cube, base, cls.Question)
		}
		return r.startQuestion(ctx, sess, cls.Question)

	default:
		sess.ResetQuery()
		return r.startQuestion(ctx, sess, cls.Question)
	}
}

// startQuestion picks a cube for a fresh question and runs the fill
// step on a blank template.
func (r *Router) startQuestion(ctx context.Context, sess *session.Session, question string) (*Response, error) {
	hits, err := r.cubes.SearchCubes(ctx, question, r.cfg.CandidateCubes)
	if err != nil {
		return nil, fmt.Errorf("search cubes: %w", err)
	}
	if len(hits) == 0 {
		return &Response{Status: StatusNoData, Message: noCubeMessage()}, nil
	}

	name := hits[0].Name
	if len(hits) > 1 {
		candidates := make([]string, 0, len(hits))
		for _, h := range hits {
			candidates = append(candidates, h.Name)
		}
		name, err = r.extract.SelectCube(ctx, question, r.catalog.Schemas(candidates), candidates)
		if err != nil {
			return nil, fmt.Errorf("select cube: %w", err)
		}
		if name == "" {
			return &Response{Status: StatusNoData, Message: noCubeMessage()}, nil
		}
	}

	cube, err := r.catalog.Cube(name)
	if err != nil {
		return nil, fmt.Errorf("selected cube: %w", err)
	}
	r.logger.Info("cube selected",
		zap.String("session", sess.ID),
		zap.String("cube", cube.Name),
	)

	return r.continueQuestion(ctx, sess, cube, form.NewTemplate(cube), question)
}

// continueQuestion runs the fill step against the question, merges the
// result into the base form and either asks for what is missing or
// resolves and executes the completed query. The extracted values land
// on a blank template first, so axes the utterance mentions replace the
// stored values while unmentioned axes keep them. The merge is atomic:
// a failed fill leaves the stored form untouched.
func (r *Router) continueQuestion(ctx context.Context, sess *session.Session, cube *schema.Cube, base *form.Form, question string) (*Response, error) {
	comps, err := r.extract.ExtractComponents(ctx, cube.ColumnsDescription(), question)
	if err != nil {
		return nil, fmt.Errorf("extract components: %w", err)
	}

	update := form.NewTemplate(cube)
	r.applyComponents(cube, update, comps)

	merged, err := form.Merge(base, update)
	if err != nil {
		return nil, fmt.Errorf("merge form: %w", err)
	}

	missing, err := form.FindMissing(merged)
	if err != nil {
		return nil, fmt.Errorf("check form: %w", err)
	}

	if err := r.storeForm(sess, cube, merged); err != nil {
		return nil, err
	}

	if len(missing) > 0 {
		return &Response{
			Status:  StatusClarification,
			Cube:    cube.Name,
			Message: r.clarificationMessage(cube, missing),
		}, nil
	}
	return r.runQuery(ctx, cube, merged)
}

func (r *Router) storeForm(sess *session.Session, cube *schema.Cube, f *form.Form) error {
	state, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("serialize form: %w", err)
	}
	sess.Cube = cube.Name
	sess.FormState = state
	return nil
}

// applyComponents writes extracted drilldowns, filters and measures onto
// the form. Values the cube does not know are skipped with a warning
// rather than failing the turn.
func (r *Router) applyComponents(cube *schema.Cube, f *form.Form, comps *extraction.Components) {
	for _, name := range comps.Drilldowns {
		if err := r.applyDrilldown(cube, f, name); err != nil {
			r.logger.Warn("skipping drilldown", zap.String("name", name), zap.Error(err))
		}
	}
	for _, raw := range comps.Filters {
		if err := r.applyFilter(cube, f, raw); err != nil {
			r.logger.Warn("skipping filter", zap.String("filter", raw), zap.Error(err))
		}
	}
	if len(comps.Measures) > 0 {
		f.SetMeasures(mergeMeasures(cube, f.Measures(), comps.Measures))
	}
}

func (r *Router) applyDrilldown(cube *schema.Cube, f *form.Form, name string) error {
	level, err := cube.Level(name)
	if err != nil {
		// The model may name a dimension instead of a level; take its
		// most granular level.
		levels, dimErr := cube.DimensionLevels(name)
		if dimErr != nil {
			return err
		}
		level, err = cube.Level(levels[len(levels)-1])
		if err != nil {
			return err
		}
	}
	key, err := formKey(cube, level.CanonicalName())
	if err != nil {
		return err
	}
	return f.AddDimensionValues(key, level.CanonicalName())
}

func (r *Router) applyFilter(cube *schema.Cube, f *form.Form, raw string) error {
	name, value, op := parseFilter(raw)
	if name == "" || value == "" {
		return fmt.Errorf("malformed filter %q", raw)
	}

	stored := value
	if op == ">=" || op == "<=" {
		stored = op + " " + value
	}

	// The filter may name a form axis directly, or a level whose owning
	// axis has to be looked up.
	if err := f.AddDimensionValues(name, stored); err == nil {
		return nil
	}
	level, err := cube.Level(name)
	if err != nil {
		return err
	}
	key, err := formKey(cube, level.CanonicalName())
	if err != nil {
		return err
	}
	return f.AddDimensionValues(key, stored)
}

// formKey maps a level to the form axis its values are recorded under:
// the dimension name, or the hierarchy name when the dimension offers a
// hierarchy choice.
func formKey(cube *schema.Cube, level string) (string, error) {
	dim, hier, err := cube.OwningDimension(level)
	if err != nil {
		return "", err
	}
	if dim.MultiHierarchy() {
		return hier.Name, nil
	}
	return dim.Name, nil
}

func parseFilter(raw string) (name, value, op string) {
	for _, candidate := range []string{">=", "<=", "="} {
		if idx := strings.Index(raw, candidate); idx >= 0 {
			return strings.TrimSpace(raw[:idx]), strings.TrimSpace(raw[idx+len(candidate):]), candidate
		}
	}
	return "", "", ""
}

// mergeMeasures unions existing and extracted measures, keeping only
// names the cube declares and preserving encounter order.
func mergeMeasures(cube *schema.Cube, existing, extracted []string) []string {
	known := make(map[string]string)
	for _, name := range cube.MeasureNames() {
		known[strings.ToLower(name)] = name
	}

	var out []string
	seen := make(map[string]bool)
	for _, name := range append(append([]string(nil), existing...), extracted...) {
		canonical, ok := known[strings.ToLower(name)]
		if !ok {
			continue
		}
		if !seen[canonical] {
			seen[canonical] = true
			out = append(out, canonical)
		}
	}
	return out
}

// runQuery resolves the completed form and executes it.
func (r *Router) runQuery(ctx context.Context, cube *schema.Cube, f *form.Form) (*Response, error) {
	constraints, drilldowns, measures := resolver.FromForm(cube, f)

	started := time.Now()
	res, err := r.resolve.Resolve(ctx, cube, constraints, drilldowns, measures)
	if err != nil {
		r.metrics.RecordResolution(cube.Name, false, time.Since(started).Seconds(), 0)
		return nil, fmt.Errorf("resolve query: %w", err)
	}
	r.metrics.RecordResolution(cube.Name, true, time.Since(started).Seconds(), len(res.Ambiguities))

	if len(res.Ambiguities) > 0 {
		return &Response{
			Status:  StatusClarification,
			Cube:    cube.Name,
			Message: ambiguityMessage(res.Ambiguities),
		}, nil
	}

	q := res.Query
	q.Limit = f.Scalar(form.FieldLimit)
	q.Sort = f.Scalar(form.FieldSort)
	q.Locale = f.Scalar(form.FieldLocale)

	started = time.Now()
	result, problem, err := r.exec.Execute(ctx, q)
	if err != nil {
		r.metrics.RecordExecution(cube.Name, false, time.Since(started).Seconds(), 0)
		return nil, fmt.Errorf("execute query: %w", err)
	}
	rows := 0
	if result != nil {
		rows = len(result.Rows)
	}
	r.metrics.RecordExecution(cube.Name, problem == "", time.Since(started).Seconds(), rows)

	summary := &QuerySummary{
		Cube:       q.Cube,
		Drilldowns: q.Drilldowns(),
		Measures:   q.Measures(),
		Cuts:       q.CutsDisplay(),
	}
	if result != nil {
		summary.URL = result.URL
	}

	if problem != "" {
		return &Response{
			Status:  StatusNoData,
			Cube:    cube.Name,
			Message: noDataMessage(problem),
			Query:   summary,
			Result:  result,
		}, nil
	}
	return &Response{
		Status:  StatusAnswer,
		Cube:    cube.Name,
		Message: answerMessage(summary, rows),
		Query:   summary,
		Result:  result,
	}, nil
}
