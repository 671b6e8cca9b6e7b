package similarity

import (
	"context"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/datales/cubechat/internal/schema"
)

// CubeHit is one candidate cube for a natural-language question.
type CubeHit struct {
	Name  string
	Score float64
}

// CubeSearcher retrieves candidate cubes for a question. The candidates
// are handed to the language model for final disambiguation.
type CubeSearcher interface {
	SearchCubes(ctx context.Context, question string, k int) ([]CubeHit, error)
}

type cubeDocument struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// CubeIndex is an in-memory full-text index over cube names and
// descriptions.
type CubeIndex struct {
	index  bleve.Index
	closed bool
	mu     sync.RWMutex
}

// NewCubeIndex builds the cube index from the catalog.
func NewCubeIndex(manager *schema.Manager) (*CubeIndex, error) {
	idx, err := bleve.NewMemOnly(buildCubeMapping())
	if err != nil {
		return nil, err
	}

	batch := idx.NewBatch()
	for _, cube := range manager.Cubes() {
		doc := cubeDocument{Name: cube.Name, Description: cube.Description}
		if err := batch.Index(cube.Name, doc); err != nil {
			return nil, err
		}
	}
	if err := idx.Batch(batch); err != nil {
		return nil, err
	}

	return &CubeIndex{index: idx}, nil
}

func buildCubeMapping() *mapping.IndexMappingImpl {
	textFieldMapping := bleve.NewTextFieldMapping()
	textFieldMapping.Analyzer = standard.Name

	docMapping := bleve.NewDocumentMapping()
	docMapping.AddFieldMappingsAt("name", textFieldMapping)
	docMapping.AddFieldMappingsAt("description", textFieldMapping)

	indexMapping := bleve.NewIndexMapping()
	indexMapping.DefaultMapping = docMapping
	indexMapping.DefaultAnalyzer = standard.Name
	return indexMapping
}

// SearchCubes returns up to k candidate cubes for the question, best
// match first. An empty result means no cube looks related at all.
func (c *CubeIndex) SearchCubes(ctx context.Context, question string, k int) ([]CubeHit, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return nil, ErrIndexClosed
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	query := bleve.NewMatchQuery(question)
	req := bleve.NewSearchRequestOptions(query, k, 0, false)

	result, err := c.index.Search(req)
	if err != nil {
		return nil, err
	}

	hits := make([]CubeHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		hits = append(hits, CubeHit{Name: hit.ID, Score: hit.Score})
	}
	return hits, nil
}

// Close releases the index.
func (c *CubeIndex) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.index.Close()
}
