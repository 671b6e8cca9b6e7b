package similarity

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/datales/cubechat/internal/embedding"
	"github.com/datales/cubechat/internal/metrics"
	"github.com/datales/cubechat/internal/schema"
)

const memberCatalog = `{
  "cubes": [
    {
      "name": "international_trade",
      "description": "Annual trade flows between countries",
      "dimensions": [
        {
          "name": "Geography",
          "hierarchies": [
            {"name": "Exporter", "levels": [
              {"name": "Country", "unique_name": "Exporter Country", "members": [
                {"id": "chl", "name": "Chile"},
                {"id": "arg", "name": "Argentina"},
                {"id": "can", "name": "Canada"}
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
      "measures": [{"name": "Trade Value"}]
    },
    {
      "name": "population_estimate",
      "description": "Population totals by nation",
      "dimensions": [
        {
          "name": "Geography",
          "hierarchies": [
            {"name": "Geography", "levels": [
              {"name": "Nation", "members": [
                {"id": "cl", "name": "Chile"},
                {"id": "de", "name": "Germany"}
              ]}
            ]}
          ]
        }
      ],
      "measures": [{"name": "Population"}]
    }
  ]
}`

func newMemberIndex(t *testing.T) *MemberIndex {
	t.Helper()
	manager, err := schema.NewManagerFromBytes([]byte(memberCatalog))
	require.NoError(t, err)

	idx := NewMemberIndex(embedding.NewMockProvider(128), nil)
	require.NoError(t, idx.IndexCatalog(context.Background(), manager))
	return idx
}

func TestMemberIndex_IndexCatalog(t *testing.T) {
	idx := newMemberIndex(t)
	defer idx.Close()

	// 3 exporter countries + 2 sections + 2 nations.
	assert.Equal(t, 7, idx.Size())
}

func TestMemberIndex_ResolveMember(t *testing.T) {
	idx := newMemberIndex(t)
	defer idx.Close()

	ctx := context.Background()

	t.Run("exact label resolves to its member", func(t *testing.T) {
		match, err := idx.ResolveMember(ctx, "Chile", "international_trade", []string{"Exporter Country"})
		require.NoError(t, err)
		assert.Equal(t, "chl", match.MemberID)
		assert.Equal(t, "Exporter Country", match.Level)
		assert.Equal(t, "Chile", match.Label)
		assert.Greater(t, match.Score, float32(0.9))
	})

	t.Run("search is scoped to the given cube", func(t *testing.T) {
		match, err := idx.ResolveMember(ctx, "Chile", "population_estimate", []string{"Nation"})
		require.NoError(t, err)
		assert.Equal(t, "cl", match.MemberID)
		assert.Equal(t, "Nation", match.Level)
	})

	t.Run("search is scoped to the candidate levels", func(t *testing.T) {
		match, err := idx.ResolveMember(ctx, "Chemical Products", "international_trade", []string{"Section"})
		require.NoError(t, err)
		assert.Equal(t, "06", match.MemberID)
	})

	t.Run("partial overlap still finds the nearest member", func(t *testing.T) {
		match, err := idx.ResolveMember(ctx, "chemical", "international_trade", []string{"Section"})
		require.NoError(t, err)
		assert.Equal(t, "06", match.MemberID)
	})

	t.Run("no candidate levels fails", func(t *testing.T) {
		_, err := idx.ResolveMember(ctx, "Chile", "international_trade", []string{"Galaxy"})
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("unknown cube fails", func(t *testing.T) {
		_, err := idx.ResolveMember(ctx, "Chile", "weather", []string{"Exporter Country"})
		assert.ErrorIs(t, err, ErrNoCandidates)
	})

	t.Run("records lookups per cube", func(t *testing.T) {
		lookups := func(status string) float64 {
			return testutil.ToFloat64(metrics.Default().MemberLookupsTotal.WithLabelValues("metrics_check", status))
		}
		okBefore, errBefore := lookups("success"), lookups("error")

		_, err := idx.ResolveMember(ctx, "Chile", "metrics_check", []string{"Exporter Country"})
		require.Error(t, err)
		assert.Equal(t, okBefore, lookups("success"))
		assert.Equal(t, errBefore+1, lookups("error"))
	})
}

func TestMemberIndex_Close(t *testing.T) {
	idx := newMemberIndex(t)
	require.NoError(t, idx.Close())

	_, err := idx.ResolveMember(context.Background(), "Chile", "international_trade", []string{"Exporter Country"})
	assert.ErrorIs(t, err, ErrIndexClosed)
	assert.Equal(t, 0, idx.Size())
}
