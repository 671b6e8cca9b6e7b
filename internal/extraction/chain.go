package extraction

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/metrics"
)

// Strategy pairs a provider with the model it should be asked for.
type Strategy struct {
	Provider Provider
	Model    string
}

// Chain tries an ordered list of strategies until one returns a reply
// that parses into the expected JSON shape. Each strategy gets a bounded
// number of retries for transient failures; malformed output moves on to
// the next strategy instead of being retried forever.
type Chain struct {
	strategies []Strategy
	retry      RetryPolicy
	metrics    *metrics.Metrics
	logger     *zap.Logger
}

// NewChain creates a strategy chain.
func NewChain(strategies []Strategy, retry RetryPolicy, logger *zap.Logger) *Chain {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Chain{strategies: strategies, retry: retry, metrics: metrics.Default(), logger: logger}
}

// Complete sends the system prompt and user content to the chain and
// unmarshals the embedded JSON object of the reply into out. The task
// labels the recorded metrics.
func (c *Chain) Complete(ctx context.Context, task, system, content string, out interface{}) (err error) {
	if len(c.strategies) == 0 {
		return fmt.Errorf("%w: no strategies configured", ErrAllStrategiesFailed)
	}

	started := time.Now()
	attempts := 0
	defer func() {
		c.metrics.RecordExtraction(task, attempts, err == nil, time.Since(started).Seconds())
	}()

	var lastErr error
	for _, st := range c.strategies {
		req := &CompletionRequest{
			Model: st.Model,
			Messages: []Message{
				{Role: "system", Content: system},
				{Role: "user", Content: content},
			},
			Temperature: floatPtr(0),
			JSONMode:    true,
		}

		var resp *CompletionResponse
		err := c.retry.Do(ctx, func(ctx context.Context) error {
			attempts++
			var err error
			resp, err = st.Provider.Complete(ctx, req)
			return err
		})
		if err != nil {
			c.logger.Warn("extraction strategy failed",
				zap.String("provider", st.Provider.Name()),
				zap.String("model", st.Model),
				zap.Error(err),
			)
			lastErr = err
			continue
		}

		raw, err := ExtractJSON(resp.Text())
		if err != nil {
			c.logger.Warn("model reply carried no JSON",
				zap.String("provider", st.Provider.Name()),
				zap.String("model", st.Model),
			)
			lastErr = err
			continue
		}
		if err := json.Unmarshal([]byte(raw), out); err != nil {
			c.logger.Warn("model reply JSON did not match schema",
				zap.String("provider", st.Provider.Name()),
				zap.String("model", st.Model),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("%w: %v", ErrAllStrategiesFailed, lastErr)
}

// Close closes every distinct provider in the chain.
func (c *Chain) Close() error {
	seen := make(map[string]bool)
	var firstErr error
	for _, st := range c.strategies {
		if seen[st.Provider.Name()] {
			continue
		}
		seen[st.Provider.Name()] = true
		if err := st.Provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func floatPtr(v float64) *float64 { return &v }
