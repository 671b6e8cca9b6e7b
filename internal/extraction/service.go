package extraction

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"
)

// TurnType classifies the latest conversational turn.
type TurnType string

const (
	// TurnNewQuery starts an unrelated query; the running form is reset.
	TurnNewQuery TurnType = "new_question"
	// TurnComplementary adds information to the prior query; the running
	// form is the merge base.
	TurnComplementary TurnType = "complement"
	// TurnNotAQuery is small talk or anything else that is not a data
	// question.
	TurnNotAQuery TurnType = "no_question"
)

// Classification is the routed interpretation of the latest turn.
type Classification struct {
	Type      TurnType
	Question  string
	Reasoning string
}

// Components are the raw query parts extracted from a question: level
// names to drill down on, measures, and "level = value" filter strings.
type Components struct {
	Drilldowns  []string
	Measures    []string
	Filters     []string
	Explanation string
}

// Service is the language-model extraction service.
type Service struct {
	chain  *Chain
	logger *zap.Logger
}

// NewService creates an extraction service over the given strategy chain.
func NewService(chain *Chain, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{chain: chain, logger: logger}
}

type classifyReply struct {
	Question  string `json:"question"`
	Reasoning string `json:"reasoning"`
	Type      string `json:"type"`
}

// Classify decides whether the latest turn of the transcript is a new
// query, complementary information, or not a query at all.
func (s *Service) Classify(ctx context.Context, transcript string) (*Classification, error) {
	var reply classifyReply
	if err := s.chain.Complete(ctx, "classify", classifySystemPrompt, classifyPrompt(transcript), &reply); err != nil {
		return nil, err
	}

	c := &Classification{
		Type:      normalizeTurnType(reply.Type),
		Question:  strings.TrimSpace(reply.Question),
		Reasoning: reply.Reasoning,
	}
	s.logger.Debug("turn classified",
		zap.String("type", string(c.Type)),
		zap.String("question", c.Question),
	)
	return c, nil
}

// Model output for the turn type wanders; map anything that is not
// recognizably new or complementary to "not a query".
func normalizeTurnType(raw string) TurnType {
	t := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.Contains(t, "new"):
		return TurnNewQuery
	case strings.Contains(t, "complement"):
		return TurnComplementary
	default:
		return TurnNotAQuery
	}
}

type selectCubeReply struct {
	Explanation string `json:"explanation"`
	Table       string `json:"table"`
}

// SelectCube asks the model to pick one cube among the candidates whose
// rendered schemas are given. An empty return means none fits.
func (s *Service) SelectCube(ctx context.Context, question, schemas string, candidates []string) (string, error) {
	var reply selectCubeReply
	if err := s.chain.Complete(ctx, "select_cube", selectCubeSystemPrompt, selectCubePrompt(schemas, question), &reply); err != nil {
		return "", err
	}

	chosen := strings.TrimSpace(reply.Table)
	for _, name := range candidates {
		if strings.EqualFold(name, chosen) {
			return name, nil
		}
	}
	s.logger.Debug("model chose no known cube", zap.String("answer", chosen))
	return "", nil
}

type componentsReply struct {
	Drilldowns  flexList `json:"drilldowns"`
	Measures    flexList `json:"measures"`
	Filters     flexList `json:"filters"`
	Explanation string   `json:"explanation"`
}

// ExtractComponents extracts drilldowns, measures and raw filter strings
// for a question against the rendered columns of a cube.
func (s *Service) ExtractComponents(ctx context.Context, columns, question string) (*Components, error) {
	var reply componentsReply
	if err := s.chain.Complete(ctx, "extract_components", componentsSystemPrompt, componentsPrompt(columns, question), &reply); err != nil {
		return nil, err
	}
	return &Components{
		Drilldowns:  reply.Drilldowns,
		Measures:    reply.Measures,
		Filters:     reply.Filters,
		Explanation: reply.Explanation,
	}, nil
}

// Close releases the underlying chain.
func (s *Service) Close() error {
	return s.chain.Close()
}

// flexList accepts either a JSON list of strings or a single (possibly
// comma-separated) string, both of which models produce for list fields.
type flexList []string

func (l *flexList) UnmarshalJSON(data []byte) error {
	var asList []string
	if err := json.Unmarshal(data, &asList); err == nil {
		*l = cleanList(asList)
		return nil
	}
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		if strings.TrimSpace(asString) == "" {
			*l = nil
			return nil
		}
		*l = cleanList(strings.Split(asString, ","))
		return nil
	}
	// Anything else (null, numbers) degrades to empty rather than
	// failing the whole extraction.
	*l = nil
	return nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
