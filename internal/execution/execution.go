// Package execution builds data API requests from resolved queries and
// fetches their results.
package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/datales/cubechat/internal/resolver"
)

// Common errors for execution operations.
var (
	ErrNoCube     = errors.New("query has no cube")
	ErrNoBaseURL  = errors.New("data API base URL is required")
	ErrBadPayload = errors.New("malformed data API response")
)

// Result is the tabular outcome of one data API call.
type Result struct {
	URL     string           `json:"url"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
}

// Empty reports whether the result carries no usable rows.
func (r *Result) Empty() bool {
	return r == nil || len(r.Rows) == 0
}

// Executor runs resolved queries against a data API.
type Executor interface {
	Execute(ctx context.Context, q *resolver.Query) (*Result, string, error)
}

// Config holds data API client settings.
type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// Client is an HTTP Executor against a tesseract-style data API.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// NewClient creates a data API client.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrNoBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		logger:  logger,
	}, nil
}

// BuildURL renders the data API request for a resolved query. Cuts
// become one parameter per level with comma-separated member IDs.
func (c *Client) BuildURL(q *resolver.Query) (string, error) {
	if q.Cube == "" {
		return "", ErrNoCube
	}

	params := url.Values{}
	params.Set("cube", q.Cube)

	for _, level := range q.CutLevels() {
		cuts := q.Cuts()[level]
		ids := make([]string, 0, len(cuts))
		for _, cut := range cuts {
			ids = append(ids, cut.MemberID)
		}
		params.Set(level, strings.Join(ids, ","))
	}

	if drills := q.Drilldowns(); len(drills) > 0 {
		params.Set("drilldowns", strings.Join(drills, ","))
	}
	if measures := q.Measures(); len(measures) > 0 {
		params.Set("measures", strings.Join(measures, ","))
	}
	if q.Limit != "" {
		params.Set("limit", q.Limit)
	}
	if q.Sort != "" {
		params.Set("sort", q.Sort)
	}
	if q.Locale != "" {
		params.Set("locale", q.Locale)
	}

	return c.baseURL + "/data.jsonrecords?" + params.Encode(), nil
}

type recordsPayload struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
}

// Execute fetches the query results. The returned string is a
// user-facing problem description; it is non-empty exactly when the
// call produced no usable rows.
func (c *Client) Execute(ctx context.Context, q *resolver.Query) (*Result, string, error) {
	reqURL, err := c.BuildURL(q)
	if err != nil {
		return nil, "", err
	}

	c.logger.Debug("fetching data", zap.String("url", reqURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return &Result{URL: reqURL}, fmt.Sprintf("data API unreachable: %v", err), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Result{URL: reqURL}, fmt.Sprintf("failed to read data API response: %v", err), nil
	}

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn("data API error",
			zap.Int("status", resp.StatusCode),
			zap.String("url", reqURL),
		)
		return &Result{URL: reqURL}, fmt.Sprintf("data API returned status %d", resp.StatusCode), nil
	}

	var payload recordsPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return &Result{URL: reqURL}, fmt.Sprintf("%v: %v", ErrBadPayload, err), nil
	}

	result := &Result{
		URL:     reqURL,
		Columns: payload.Columns,
		Rows:    payload.Data,
	}
	if len(result.Columns) == 0 && len(result.Rows) > 0 {
		result.Columns = columnsFromRows(result.Rows)
	}

	if result.Empty() {
		return result, "no data found for the requested query", nil
	}
	return result, "", nil
}

func columnsFromRows(rows []map[string]any) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, row := range rows {
		for k := range row {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	return cols
}
