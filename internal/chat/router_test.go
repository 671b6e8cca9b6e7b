package chat

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datales/cubechat/internal/execution"
	"github.com/datales/cubechat/internal/extraction"
	"github.com/datales/cubechat/internal/resolver"
	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/session"
	"github.com/datales/cubechat/internal/similarity"
)

const chatCatalog = `{
  "cubes": [
    {
      "name": "international_trade",
      "description": "Annual trade flows between countries",
      "dimensions": [
        {"name": "Year", "hierarchies": [{"name": "Year", "levels": [{"name": "Year"}]}]},
        {
          "name": "Geography",
          "hierarchies": [
            {"name": "Geography", "levels": [
              {"name": "Exporter Country", "members": [
                {"id": "chl", "name": "Chile"},
                {"id": "arg", "name": "Argentina"}
              ]}
            ]}
          ]
        },
        {
          "name": "Product",
          "hierarchies": [
            {"name": "Product", "levels": [
              {"name": "Section", "members": [
                {"id": "01", "name": "Animal Products"},
                {"id": "06", "name": "Chemical Products"}
              ]}
            ]}
          ]
        }
      ],
      "measures": [{"name": "Trade Value"}, {"name": "Quantity"}]
    }
  ]
}`

// stubSearcher returns a fixed candidate list.
type stubSearcher struct {
	hits []similarity.CubeHit
}

func (s *stubSearcher) SearchCubes(ctx context.Context, question string, k int) ([]similarity.CubeHit, error) {
	if len(s.hits) > k {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

// stubMembers resolves any text against a fixed match table.
type stubMembers struct {
	matches map[string]similarity.Match
}

func (s *stubMembers) ResolveMember(ctx context.Context, text, cube string, levels []string) (*similarity.Match, error) {
	if m, ok := s.matches[text]; ok {
		return &m, nil
	}
	return nil, similarity.ErrNoCandidates
}

// stubExecutor returns a canned result.
type stubExecutor struct {
	result  *execution.Result
	problem string
}

func (s *stubExecutor) Execute(ctx context.Context, q *resolver.Query) (*execution.Result, string, error) {
	return s.result, s.problem, nil
}

type routerFixture struct {
	router   *Router
	sessions session.Store
	executor *stubExecutor
}

func newFixture(t *testing.T, minSimilarity float32, replies ...string) *routerFixture {
	t.Helper()

	catalog, err := schema.NewManagerFromBytes([]byte(chatCatalog))
	require.NoError(t, err)

	provider := extraction.NewMockProvider("mock").WithResponses(replies...)
	chain := extraction.NewChain(
		[]extraction.Strategy{{Provider: provider, Model: "test"}},
		extraction.RetryPolicy{MaxAttempts: 1},
		nil,
	)
	extract := extraction.NewService(chain, nil)

	members := &stubMembers{matches: map[string]similarity.Match{
		"Chile": {MemberID: "chl", Level: "Exporter Country", Label: "Chile", Score: 0.97},
		"Chiel": {MemberID: "chl", Level: "Exporter Country", Label: "Chile", Score: 0.40},
	}}
	resolve := resolver.New(members, nil, resolver.WithMinSimilarity(minSimilarity))

	executor := &stubExecutor{
		result: &execution.Result{
			URL:     "https://api.example.org/data.jsonrecords?cube=international_trade",
			Columns: []string{"Year", "Trade Value"},
			Rows: []map[string]any{
				{"Year": 2018, "Trade Value": 100.0},
			},
		},
	}

	sessions := session.NewMemoryStore()
	t.Cleanup(func() { sessions.Close() })

	searcher := &stubSearcher{hits: []similarity.CubeHit{{Name: "international_trade", Score: 1.2}}}

	return &routerFixture{
		router:   New(catalog, searcher, extract, resolve, executor, sessions, nil, nil, DefaultConfig()),
		sessions: sessions,
		executor: executor,
	}
}

func classifyReply(turnType, question string) string {
	return `{"question": "` + question + `", "reasoning": "test", "type": "` + turnType + `"}`
}

func TestRouter_Respond_EmptyMessage(t *testing.T) {
	fix := newFixture(t, 0)
	_, err := fix.router.Respond(context.Background(), "", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
}

func TestRouter_Respond_UnknownSession(t *testing.T) {
	fix := newFixture(t, 0, classifyReply("no_question", ""))
	_, err := fix.router.Respond(context.Background(), "no-such-session", "hello")
	var notFound *session.ErrNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestRouter_Respond_Deflection(t *testing.T) {
	fix := newFixture(t, 0, classifyReply("no_question", ""))

	resp, err := fix.router.Respond(context.Background(), "", "how are you today?")
	require.NoError(t, err)
	assert.Equal(t, StatusDeflection, resp.Status)
	assert.NotEmpty(t, resp.SessionID)

	sess, err := fix.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	require.Len(t, sess.Turns, 2)
	assert.True(t, sess.Turns[0].FromUser)
	assert.False(t, sess.Turns[1].FromUser)
}

func TestRouter_Respond_Clarification(t *testing.T) {
	fix := newFixture(t, 0,
		classifyReply("new_question", "exports of Chile"),
		`{"drilldowns": [], "measures": ["Trade Value"], "filters": ["Exporter Country = Chile"]}`,
	)

	resp, err := fix.router.Respond(context.Background(), "", "what are the exports of Chile?")
	require.NoError(t, err)
	assert.Equal(t, StatusClarification, resp.Status)
	assert.Equal(t, "international_trade", resp.Cube)
	assert.Contains(t, resp.Message, "Year")
	assert.Contains(t, resp.Message, "Product")
	assert.Contains(t, resp.Message, "Animal Products", "clarification shows member samples")

	sess, err := fix.sessions.Get(context.Background(), resp.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "international_trade", sess.Cube)
	assert.NotNil(t, sess.FormState, "partial form persists for the next turn")
}

func TestRouter_Respond_CompleteOverTwoTurns(t *testing.T) {
	fix := newFixture(t, 0,
		classifyReply("new_question", "exports of Chile"),
		`{"drilldowns": [], "measures": ["Trade Value"], "filters": ["Exporter Country = Chile"]}`,
		classifyReply("complement", "in 2018 for all products"),
		`{"drilldowns": [], "measures": [], "filters": ["Year = 2018", "Product = All"]}`,
	)
	ctx := context.Background()

	first, err := fix.router.Respond(ctx, "", "what are the exports of Chile?")
	require.NoError(t, err)
	require.Equal(t, StatusClarification, first.Status)

	second, err := fix.router.Respond(ctx, first.SessionID, "in 2018 for all products")
	require.NoError(t, err)
	assert.Equal(t, StatusAnswer, second.Status)
	require.NotNil(t, second.Query)
	assert.Equal(t, "international_trade", second.Query.Cube)
	assert.Contains(t, second.Query.Drilldowns, "Section")
	assert.Contains(t, second.Query.Cuts, "Chile")
	assert.Contains(t, second.Query.Cuts, "2018")
	assert.Equal(t, []string{"Trade Value"}, second.Query.Measures)
	require.NotNil(t, second.Result)
	assert.Len(t, second.Result.Rows, 1)
	assert.Contains(t, second.Message, "1 rows returned")
}

func TestRouter_Respond_ComplementOverwritesMentionedAxis(t *testing.T) {
	fix := newFixture(t, 0,
		classifyReply("new_question", "exports of Chile in 2018"),
		`{"drilldowns": [], "measures": ["Trade Value"], "filters": ["Exporter Country = Chile", "Year = 2018", "Product = All"]}`,
		classifyReply("complement", "make that 2019 instead"),
		`{"drilldowns": [], "measures": [], "filters": ["Year = 2019"]}`,
	)
	ctx := context.Background()

	first, err := fix.router.Respond(ctx, "", "exports of Chile in 2018, all products")
	require.NoError(t, err)
	require.Equal(t, StatusAnswer, first.Status)
	require.NotNil(t, first.Query)
	assert.Contains(t, first.Query.Cuts, "2018")

	second, err := fix.router.Respond(ctx, first.SessionID, "make that 2019 instead")
	require.NoError(t, err)
	assert.Equal(t, StatusAnswer, second.Status)
	require.NotNil(t, second.Query)
	// The year was mentioned again, so it is replaced, not accumulated.
	assert.Contains(t, second.Query.Cuts, "2019")
	assert.NotContains(t, second.Query.Cuts, "2018")
	// Axes the correction did not mention keep their values.
	assert.Contains(t, second.Query.Cuts, "Chile")
	assert.Equal(t, []string{"Trade Value"}, second.Query.Measures)
}

func TestRouter_Respond_NewQuestionResetsForm(t *testing.T) {
	fix := newFixture(t, 0,
		classifyReply("new_question", "exports of Chile"),
		`{"drilldowns": [], "measures": ["Trade Value"], "filters": ["Exporter Country = Chile"]}`,
		classifyReply("new_question", "trade in 2019"),
		`{"drilldowns": [], "measures": [], "filters": ["Year = 2019"]}`,
	)
	ctx := context.Background()

	first, err := fix.router.Respond(ctx, "", "what are the exports of Chile?")
	require.NoError(t, err)
	require.Equal(t, StatusClarification, first.Status)

	second, err := fix.router.Respond(ctx, first.SessionID, "actually, show me trade in 2019")
	require.NoError(t, err)
	// The prior Chile filter is gone, so geography is missing again.
	assert.Equal(t, StatusClarification, second.Status)
	assert.Contains(t, second.Message, "Geography")
}

func TestRouter_Respond_NoCube(t *testing.T) {
	fix := newFixture(t, 0, classifyReply("new_question", "lunar phases"))
	fix.router.cubes = &stubSearcher{}

	resp, err := fix.router.Respond(context.Background(), "", "what are the lunar phases?")
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, resp.Status)
}

func TestRouter_Respond_Ambiguity(t *testing.T) {
	fix := newFixture(t, 0.8,
		classifyReply("new_question", "exports of Chiel in 2018"),
		`{"drilldowns": [], "measures": ["Trade Value"], "filters": ["Exporter Country = Chiel", "Year = 2018", "Product = All"]}`,
	)

	resp, err := fix.router.Respond(context.Background(), "", "exports of Chiel in 2018, all products")
	require.NoError(t, err)
	assert.Equal(t, StatusClarification, resp.Status)
	assert.Contains(t, resp.Message, "could not confidently match")
	assert.Contains(t, resp.Message, "Chile")
}

func TestRouter_Respond_NoData(t *testing.T) {
	fix := newFixture(t, 0,
		classifyReply("new_question", "exports of Chile in 2018"),
		`{"drilldowns": [], "measures": ["Trade Value"], "filters": ["Exporter Country = Chile", "Year = 2018", "Product = All"]}`,
	)
	fix.executor.result = &execution.Result{URL: "https://api.example.org/x"}
	fix.executor.problem = "no data found for the requested query"

	resp, err := fix.router.Respond(context.Background(), "", "exports of Chile in 2018, all products")
	require.NoError(t, err)
	assert.Equal(t, StatusNoData, resp.Status)
	require.NotNil(t, resp.Query)
	assert.NotEmpty(t, resp.Query.Cuts)
}

func TestMergeMeasures(t *testing.T) {
	catalog, err := schema.NewManagerFromBytes([]byte(chatCatalog))
	require.NoError(t, err)
	cube, err := catalog.Cube("international_trade")
	require.NoError(t, err)

	t.Run("canonicalizes case and drops unknown names", func(t *testing.T) {
		out := mergeMeasures(cube, nil, []string{"trade value", "Revenue"})
		assert.Equal(t, []string{"Trade Value"}, out)
	})

	t.Run("unions without duplicates, existing first", func(t *testing.T) {
		out := mergeMeasures(cube, []string{"Trade Value"}, []string{"Quantity", "Trade Value"})
		assert.Equal(t, []string{"Trade Value", "Quantity"}, out)
	})
}

func TestParseFilter(t *testing.T) {
	name, value, op := parseFilter("Year >= 2015")
	assert.Equal(t, "Year", name)
	assert.Equal(t, "2015", value)
	assert.Equal(t, ">=", op)

	name, _, _ = parseFilter("no operator here")
	assert.Empty(t, name)
}
