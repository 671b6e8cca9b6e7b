// Package similarity provides the nearest-neighbor lookups cubechat
// relies on: resolving free-text filter values to canonical cube members
// and retrieving candidate cubes for a natural-language question.
package similarity

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/embedding"
	"github.com/datales/cubechat/internal/metrics"
	"github.com/datales/cubechat/internal/schema"
)

// Common errors for similarity operations.
var (
	ErrIndexClosed  = errors.New("similarity index is closed")
	ErrNoCandidates = errors.New("no candidate members for the requested levels")
)

// Match is the best canonical member for a piece of free text.
type Match struct {
	MemberID string
	Level    string
	Label    string
	Score    float32
}

// MemberResolver maps free text to the best-matching canonical member
// among the given candidate levels of a cube.
type MemberResolver interface {
	ResolveMember(ctx context.Context, text, cube string, levels []string) (*Match, error)
}

type memberEntry struct {
	cube   string
	level  string
	id     string
	name   string
	vector []float32
}

// MemberIndex is a brute-force vector index over every enumerable member
// label in the catalog. Catalogs hold at most a few hundred thousand
// members, so a filtered linear scan is fast enough and avoids keeping a
// second copy of the data in an ANN structure.
type MemberIndex struct {
	provider embedding.Provider
	metrics  *metrics.Metrics
	logger   *zap.Logger
	entries  []memberEntry
	closed   bool
	mu       sync.RWMutex
}

// NewMemberIndex creates an empty member index.
func NewMemberIndex(provider embedding.Provider, logger *zap.Logger) *MemberIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberIndex{provider: provider, metrics: metrics.Default(), logger: logger}
}

// IndexCatalog embeds every member label of every cube in the catalog.
// Member ids are indexed under the canonical level name.
func (idx *MemberIndex) IndexCatalog(ctx context.Context, manager *schema.Manager) error {
	for _, cube := range manager.Cubes() {
		for _, dim := range cube.Dimensions {
			for _, h := range dim.Hierarchies {
				for _, level := range h.Levels {
					if len(level.Members) == 0 {
						continue
					}
					if err := idx.indexLevel(ctx, cube.Name, level); err != nil {
						return fmt.Errorf("index %s/%s: %w", cube.Name, level.CanonicalName(), err)
					}
				}
			}
		}
	}

	idx.mu.RLock()
	total := len(idx.entries)
	idx.mu.RUnlock()
	idx.logger.Info("member index built", zap.Int("members", total))
	return nil
}

func (idx *MemberIndex) indexLevel(ctx context.Context, cube string, level schema.Level) error {
	texts := make([]string, 0, len(level.Members))
	for _, m := range level.Members {
		texts = append(texts, m.Name)
	}

	vectors, err := idx.provider.EmbedBatch(ctx, texts)
	if err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.closed {
		return ErrIndexClosed
	}
	canonical := level.CanonicalName()
	for i, m := range level.Members {
		idx.entries = append(idx.entries, memberEntry{
			cube:   cube,
			level:  canonical,
			id:     m.ID,
			name:   m.Name,
			vector: vectors[i],
		})
	}
	return nil
}

// ResolveMember returns the single nearest member to the text among the
// candidate levels of the cube. The top match is returned regardless of
// how weak it is; callers enforce their own similarity floor.
func (idx *MemberIndex) ResolveMember(ctx context.Context, text, cube string, levels []string) (match *Match, err error) {
	started := time.Now()
	defer func() {
		idx.metrics.RecordMemberLookup(cube, err == nil, time.Since(started).Seconds())
	}()

	idx.mu.RLock()
	if idx.closed {
		idx.mu.RUnlock()
		return nil, ErrIndexClosed
	}
	idx.mu.RUnlock()

	queryVec, err := idx.provider.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	wanted := make(map[string]bool, len(levels))
	for _, l := range levels {
		wanted[l] = true
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var best *Match
	for i := range idx.entries {
		e := &idx.entries[i]
		if e.cube != cube || !wanted[e.level] {
			continue
		}
		score, err := embedding.CosineSimilarity(queryVec, e.vector)
		if err != nil {
			return nil, err
		}
		if best == nil || score > best.Score {
			best = &Match{MemberID: e.id, Level: e.level, Label: e.name, Score: score}
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%w: cube %q levels %v", ErrNoCandidates, cube, levels)
	}
	return best, nil
}

// Size returns the number of indexed members.
func (idx *MemberIndex) Size() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Close releases the index.
func (idx *MemberIndex) Close() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.closed = true
	idx.entries = nil
	return nil
}
