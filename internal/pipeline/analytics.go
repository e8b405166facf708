package pipeline

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"ragkit/internal/domain"
	"ragkit/internal/retriever"
)

// Analytics aggregates the query history into arithmetic means.
type Analytics struct {
	Message               string
	TotalQueries          int
	AverageRetrievalTime  time.Duration
	AverageGenerationTime time.Duration
	AverageTotalTime      time.Duration
	AverageResponseLength float64
	ConversationTurns     int
}

// Analytics summarizes pipeline usage. With no processed queries it
// returns a sentinel message instead of dividing by zero.
func (p *Pipeline) Analytics() Analytics {
	if len(p.records) == 0 {
		return Analytics{Message: "No queries processed yet"}
	}
	n := len(p.records)
	var retrieval, generation, total time.Duration
	var length int
	for _, rec := range p.records {
		retrieval += rec.RetrievalTime
		generation += rec.GenerationTime
		total += rec.TotalTime
		length += rec.ResponseLength
	}
	return Analytics{
		TotalQueries:          n,
		AverageRetrievalTime:  retrieval / time.Duration(n),
		AverageGenerationTime: generation / time.Duration(n),
		AverageTotalTime:      total / time.Duration(n),
		AverageResponseLength: float64(length) / float64(n),
		ConversationTurns:     len(p.history),
	}
}

// QueryExplanation describes how a question would be processed.
type QueryExplanation struct {
	Question    string
	Retrieval   retriever.Explanation
	Config      Config
	Model       string
	Suggestions []string
}

// ExplainQuery reports the retrieval analysis, pipeline configuration
// and heuristic suggestions for improving the question.
func (p *Pipeline) ExplainQuery(question string) (QueryExplanation, error) {
	ex, err := p.retriever.Explain(question, p.cfg.TopK)
	if err != nil {
		return QueryExplanation{}, err
	}
	return QueryExplanation{
		Question:    question,
		Retrieval:   ex,
		Config:      p.cfg,
		Model:       p.generator.Model(),
		Suggestions: suggestions(ex),
	}, nil
}

func suggestions(ex retriever.Explanation) []string {
	var out []string
	switch {
	case ex.TotalResults == 0:
		out = append(out, "Try using different keywords or synonyms")
		out = append(out, "Check if relevant documents have been added to the knowledge base")
	case ex.TotalResults < 3:
		out = append(out, "Try using broader or more general terms")
		out = append(out, "Consider breaking complex questions into simpler parts")
	}
	if ex.TotalResults > 0 && ex.AverageScore < 0.5 {
		out = append(out, "Results have low relevance scores - try rephrasing your question")
		out = append(out, "Add more context or specific details to your question")
	}
	return out
}

type persistedState struct {
	ConversationHistory []domain.ConversationTurn `json:"conversation_history"`
	QueryHistory        []domain.QueryRecord      `json:"query_history"`
	Config              Config                    `json:"config"`
}

// SaveState writes the conversation and query histories to a JSON file.
func (p *Pipeline) SaveState(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(persistedState{
		ConversationHistory: p.history,
		QueryHistory:        p.records,
		Config:              p.cfg,
	}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// LoadState restores histories previously written by SaveState. The
// pipeline's own configuration is kept; only histories are replaced.
func (p *Pipeline) LoadState(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	p.history = st.ConversationHistory
	p.records = st.QueryHistory
	return nil
}
