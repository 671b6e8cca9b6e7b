package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/chat"
	"github.com/datales/cubechat/internal/config"
	"github.com/datales/cubechat/internal/execution"
	"github.com/datales/cubechat/internal/extraction"
	"github.com/datales/cubechat/internal/resolver"
	"github.com/datales/cubechat/internal/schema"
	"github.com/datales/cubechat/internal/session"
	"github.com/datales/cubechat/internal/similarity"
)

const serverCatalog = `{
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
              {"name": "Exporter Country", "members": [{"id": "chl", "name": "Chile"}]}
            ]}
          ]
        }
      ],
      "measures": [{"name": "Trade Value"}]
    }
  ]
}`

type stubSearcher struct{}

func (stubSearcher) SearchCubes(ctx context.Context, question string, k int) ([]similarity.CubeHit, error) {
	return []similarity.CubeHit{{Name: "international_trade", Score: 1.0}}, nil
}

type stubMembers struct{}

func (stubMembers) ResolveMember(ctx context.Context, text, cube string, levels []string) (*similarity.Match, error) {
	return &similarity.Match{MemberID: "chl", Level: "Exporter Country", Label: "Chile", Score: 0.97}, nil
}

type stubExecutor struct{}

func (stubExecutor) Execute(ctx context.Context, q *resolver.Query) (*execution.Result, string, error) {
	return &execution.Result{URL: "https://api.example.org/x", Rows: []map[string]any{{"Year": 2018}}}, "", nil
}

type fixture struct {
	server   *Server
	sessions session.Store
}

func newFixture(t *testing.T, apiKey string, replies ...string) *fixture {
	t.Helper()

	catalog, err := schema.NewManagerFromBytes([]byte(serverCatalog))
	require.NoError(t, err)

	provider := extraction.NewMockProvider("mock").WithResponses(replies...)
	chain := extraction.NewChain(
		[]extraction.Strategy{{Provider: provider, Model: "test"}},
		extraction.RetryPolicy{MaxAttempts: 1},
		nil,
	)
	extract := extraction.NewService(chain, nil)

	sessions := session.NewMemoryStore()
	t.Cleanup(func() { sessions.Close() })

	router := chat.New(
		catalog,
		stubSearcher{},
		extract,
		resolver.New(stubMembers{}, nil),
		stubExecutor{},
		sessions,
		nil,
		nil,
		chat.DefaultConfig(),
	)

	cfg := &config.Config{}
	cfg.Server.RequestTimeout = 5 * time.Second
	cfg.Server.CORSOrigins = []string{"*"}
	cfg.Log.Level = "info"
	cfg.Security.APIKey = apiKey

	return &fixture{
		server:   New(cfg, catalog, router, sessions, zap.NewNop()),
		sessions: sessions,
	}
}

func (f *fixture) do(method, path string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.server.Router().ServeHTTP(w, req)
	return w
}

func TestHealthEndpoints(t *testing.T) {
	fix := newFixture(t, "")

	t.Run("health", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "cubechat")
	})

	t.Run("ready", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/ready", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestChatEndpoint(t *testing.T) {
	t.Run("rejects a body without a message", func(t *testing.T) {
		fix := newFixture(t, "")
		w := fix.do(http.MethodPost, "/v1/chat", []byte(`{}`))
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown session is 404", func(t *testing.T) {
		fix := newFixture(t, "")
		w := fix.do(http.MethodPost, "/v1/chat", []byte(`{"session_id": "nope", "message": "hello"}`))
		assert.Equal(t, http.StatusNotFound, w.Code)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
		assert.Equal(t, "session_not_found", errResp.Code)
	})

	t.Run("processes a turn", func(t *testing.T) {
		fix := newFixture(t, "", `{"question": "", "type": "no_question"}`)
		w := fix.do(http.MethodPost, "/v1/chat", []byte(`{"message": "good morning"}`))
		require.Equal(t, http.StatusOK, w.Code)

		var resp chat.Response
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, chat.StatusDeflection, resp.Status)
		assert.NotEmpty(t, resp.SessionID)
	})
}

func TestSessionEndpoints(t *testing.T) {
	fix := newFixture(t, "")
	ctx := context.Background()

	sess, err := fix.sessions.Create(ctx)
	require.NoError(t, err)

	t.Run("get returns the session", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/v1/sessions/"+sess.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var got session.Session
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &got))
		assert.Equal(t, sess.ID, got.ID)
	})

	t.Run("get unknown session is 404", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/v1/sessions/nope", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("delete removes the session", func(t *testing.T) {
		w := fix.do(http.MethodDelete, "/v1/sessions/"+sess.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = fix.do(http.MethodDelete, "/v1/sessions/"+sess.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestCubeEndpoints(t *testing.T) {
	fix := newFixture(t, "")

	t.Run("list", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/v1/cubes", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp struct {
			Cubes []CubeSummary `json:"cubes"`
			Count int           `json:"count"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, 1, resp.Count)
		assert.Equal(t, "international_trade", resp.Cubes[0].Name)
		assert.Equal(t, 2, resp.Cubes[0].Dimensions)
	})

	t.Run("get returns the full cube", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/v1/cubes/international_trade", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), "Exporter Country")
	})

	t.Run("unknown cube is 404", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/v1/cubes/weather", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		var errResp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
		assert.Equal(t, "cube_not_found", errResp.Code)
	})
}

func TestStatsEndpoint(t *testing.T) {
	fix := newFixture(t, "")

	_, err := fix.sessions.Create(context.Background())
	require.NoError(t, err)

	w := fix.do(http.MethodGet, "/v1/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Sessions session.StoreStats `json:"sessions"`
		Cubes    int                `json:"cubes"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Sessions.TotalSessions)
	assert.Equal(t, 1, resp.Cubes)
}

func TestAuthMiddleware(t *testing.T) {
	fix := newFixture(t, "secret")

	t.Run("rejects requests without the key", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/v1/cubes", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("accepts the key header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cubes", nil)
		req.Header.Set("X-API-Key", "secret")
		w := httptest.NewRecorder()
		fix.server.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("accepts a bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cubes", nil)
		req.Header.Set("Authorization", "Bearer secret")
		w := httptest.NewRecorder()
		fix.server.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("rejects a wrong key", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/cubes", nil)
		req.Header.Set("X-API-Key", "wrong")
		w := httptest.NewRecorder()
		fix.server.Router().ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("health skips auth", func(t *testing.T) {
		w := fix.do(http.MethodGet, "/health", nil)
		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestRateLimiter(t *testing.T) {
	rl := newRateLimiter(10)

	// A fresh client starts with a full burst of 2*rps tokens.
	for i := 0; i < 20; i++ {
		assert.True(t, rl.allow("10.0.0.1"), "request %d within burst", i)
	}
	assert.False(t, rl.allow("10.0.0.1"))

	// Other clients keep their own bucket.
	assert.True(t, rl.allow("10.0.0.2"))

	// Tokens refill with elapsed time.
	rl.mu.Lock()
	rl.buckets["10.0.0.1"].last = time.Now().Add(-time.Second)
	rl.mu.Unlock()
	assert.True(t, rl.allow("10.0.0.1"))
}

func TestRequestIDHeader(t *testing.T) {
	fix := newFixture(t, "")
	w := fix.do(http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}
