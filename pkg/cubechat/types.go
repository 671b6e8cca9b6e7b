package cubechat

import (
	"encoding/json"
	"time"
)

// ChatRequest is one dialogue turn.
type ChatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// Turn outcome statuses.
const (
	StatusAnswer        = "answer"
	StatusClarification = "clarification"
	StatusDeflection    = "deflection"
	StatusNoData        = "no_data"
)

// QuerySummary describes the resolved query behind an answer.
type QuerySummary struct {
	Cube       string   `json:"cube"`
	Drilldowns []string `json:"drilldowns"`
	Measures   []string `json:"measures"`
	Cuts       string   `json:"cuts,omitempty"`
	URL        string   `json:"url,omitempty"`
}

// Result is the tabular data behind an answer.
type Result struct {
	URL     string           `json:"url"`
	Columns []string         `json:"columns,omitempty"`
	Rows    []map[string]any `json:"rows,omitempty"`
}

// ChatResponse is the server's reply to one turn.
type ChatResponse struct {
	SessionID string        `json:"session_id"`
	Status    string        `json:"status"`
	Message   string        `json:"message"`
	Cube      string        `json:"cube,omitempty"`
	Query     *QuerySummary `json:"query,omitempty"`
	Result    *Result       `json:"result,omitempty"`
}

// SessionTurn is one utterance of a stored session.
type SessionTurn struct {
	FromUser bool      `json:"from_user"`
	Content  string    `json:"content"`
	At       time.Time `json:"at"`
}

// Session is the stored state of one conversation.
type Session struct {
	ID        string          `json:"id"`
	Cube      string          `json:"cube,omitempty"`
	FormState json.RawMessage `json:"form_state,omitempty"`
	Turns     []SessionTurn   `json:"turns,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// CubeSummary is a catalog listing entry.
type CubeSummary struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Dimensions  int    `json:"dimensions"`
	Measures    int    `json:"measures"`
}

// CubeList is the catalog listing.
type CubeList struct {
	Cubes []CubeSummary `json:"cubes"`
	Count int           `json:"count"`
}

// Member is one canonical member of a level.
type Member struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Level is one rung of a hierarchy.
type Level struct {
	Name       string   `json:"name"`
	UniqueName string   `json:"unique_name,omitempty"`
	Members    []Member `json:"members,omitempty"`
}

// Hierarchy is an ordered list of levels, coarsest first.
type Hierarchy struct {
	Name   string  `json:"name"`
	Levels []Level `json:"levels"`
}

// Dimension groups one or more hierarchies.
type Dimension struct {
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	DefaultHierarchy string      `json:"default_hierarchy,omitempty"`
	Hierarchies      []Hierarchy `json:"hierarchies"`
}

// Measure is a queryable value column.
type Measure struct {
	Name        string            `json:"name"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Cube is one analytical dataset.
type Cube struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	Dimensions  []Dimension `json:"dimensions"`
	Measures    []Measure   `json:"measures"`
}

// SessionStats summarizes the server's session store.
type SessionStats struct {
	TotalSessions    int64 `json:"total_sessions"`
	StorageSizeBytes int64 `json:"storage_size_bytes"`
}

// Stats is the /v1/stats payload.
type Stats struct {
	Sessions SessionStats `json:"sessions"`
	Cubes    int          `json:"cubes"`
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}
