package cubechat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(WithBaseURL(srv.URL))
}

func TestClient_Chat(t *testing.T) {
	ctx := context.Background()

	t.Run("sends the turn and decodes the response", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "/v1/chat", r.URL.Path)

			var req ChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "exports of chile", req.Message)
			assert.Empty(t, req.SessionID)

			json.NewEncoder(w).Encode(ChatResponse{
				SessionID: "abc",
				Status:    StatusClarification,
				Message:   "which year?",
				Cube:      "international_trade",
			})
		})

		resp, err := client.Ask(ctx, "exports of chile")
		require.NoError(t, err)
		assert.Equal(t, "abc", resp.SessionID)
		assert.Equal(t, StatusClarification, resp.Status)
		assert.Equal(t, "which year?", resp.Message)
	})

	t.Run("continues an existing session", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			var req ChatRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "abc", req.SessionID)
			json.NewEncoder(w).Encode(ChatResponse{SessionID: "abc", Status: StatusAnswer})
		})

		resp, err := client.Chat(ctx, "abc", "in 2018")
		require.NoError(t, err)
		assert.Equal(t, StatusAnswer, resp.Status)
	})

	t.Run("requires a message", func(t *testing.T) {
		client := New()
		_, err := client.Chat(ctx, "abc", "")
		assert.Error(t, err)
	})
}

func TestClient_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("decodes API errors", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error": "session not found", "code": "session_not_found"}`))
		})

		_, err := client.GetSession(ctx, "nope")
		require.Error(t, err)

		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
		assert.Equal(t, "session_not_found", apiErr.Code)
		assert.True(t, apiErr.IsNotFound())
		assert.True(t, IsNotFoundError(err))
	})

	t.Run("wraps non-JSON error bodies", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream exploded"))
		})

		err := client.Ready(ctx)
		var apiErr *APIError
		require.ErrorAs(t, err, &apiErr)
		assert.Equal(t, http.StatusBadGateway, apiErr.StatusCode)
		assert.True(t, apiErr.IsServerError())
		assert.Contains(t, apiErr.Error(), "upstream exploded")
	})
}

func TestClient_Headers(t *testing.T) {
	ctx := context.Background()

	var gotKey, gotCustom string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("X-API-Key")
		gotCustom = r.Header.Get("X-Trace")
		w.Write([]byte(`{"status": "healthy"}`))
	}))
	t.Cleanup(srv.Close)

	client := New(WithBaseURL(srv.URL), WithAPIKey("secret"), WithHeader("X-Trace", "t1"))
	_, err := client.Health(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "t1", gotCustom)
}

func TestClient_Catalog(t *testing.T) {
	ctx := context.Background()

	t.Run("lists cubes", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/cubes", r.URL.Path)
			json.NewEncoder(w).Encode(CubeList{
				Cubes: []CubeSummary{{Name: "international_trade", Dimensions: 3, Measures: 2}},
				Count: 1,
			})
		})

		list, err := client.ListCubes(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, list.Count)
		assert.Equal(t, "international_trade", list.Cubes[0].Name)
	})

	t.Run("gets a cube and escapes its name", func(t *testing.T) {
		client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/cubes/trade%20data", r.URL.EscapedPath())
			json.NewEncoder(w).Encode(Cube{Name: "trade data"})
		})

		cube, err := client.GetCube(ctx, "trade data")
		require.NoError(t, err)
		assert.Equal(t, "trade data", cube.Name)
	})

	t.Run("requires a cube name", func(t *testing.T) {
		_, err := New().GetCube(ctx, "")
		assert.Error(t, err)
	})
}

func TestClient_DeleteSession(t *testing.T) {
	ctx := context.Background()

	client := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		w.WriteHeader(http.StatusNoContent)
	})

	require.NoError(t, client.DeleteSession(ctx, "abc"))
	assert.Error(t, client.DeleteSession(ctx, ""))
}
