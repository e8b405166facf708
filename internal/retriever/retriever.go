package retriever

import (
	"fmt"
	"strings"

	"ragkit/internal/domain"
	"ragkit/internal/vectorstore"
)

// NoResultsContext is returned by ContextWindow when nothing clears the
// similarity threshold.
const NoResultsContext = "No relevant documents found."

// Retriever finds relevant documents for a query, filtering by a
// similarity threshold and ranking by ascending distance.
type Retriever struct {
	store     vectorstore.Store
	topK      int
	threshold float64
}

// New creates a retriever over the given store.
func New(store vectorstore.Store, topK int, similarityThreshold float64) *Retriever {
	if topK <= 0 {
		topK = 5
	}
	return &Retriever{store: store, topK: topK, threshold: similarityThreshold}
}

// TopK returns the default number of results per query.
func (r *Retriever) TopK() int { return r.topK }

// Threshold returns the configured similarity threshold.
func (r *Retriever) Threshold() float64 { return r.threshold }

// Retrieve returns results whose relevance (1 - distance) clears the
// threshold, ranked 1-based in ascending-distance order. An empty slice
// is a valid outcome, not an error.
func (r *Retriever) Retrieve(query string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}
	hits, err := r.store.Search(query, k)
	if err != nil {
		return nil, err
	}
	results := make([]domain.RetrievalResult, 0, len(hits))
	for _, hit := range hits {
		relevance := 1 - hit.Distance
		if relevance < r.threshold {
			continue
		}
		results = append(results, domain.RetrievalResult{
			Document:       hit.Document,
			Metadata:       hit.Metadata,
			Distance:       hit.Distance,
			Rank:           len(results) + 1,
			RelevanceScore: relevance,
		})
	}
	return results, nil
}

// RetrieveWithMetadataFilter retrieves with exact-match metadata
// filtering. It over-fetches 2k candidates because similarity order and
// metadata matching are independent, then truncates to k.
func (r *Retriever) RetrieveWithMetadataFilter(query string, filter map[string]string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}
	candidates, err := r.Retrieve(query, 2*k)
	if err != nil {
		return nil, err
	}
	results := make([]domain.RetrievalResult, 0, k)
	for _, res := range candidates {
		if !metadataMatches(res.Metadata, filter) {
			continue
		}
		results = append(results, res)
		if len(results) >= k {
			break
		}
	}
	return results, nil
}

// ContextWindow retrieves up to windowSize results and formats them as a
// single context string. Empty retrieval yields NoResultsContext.
func (r *Retriever) ContextWindow(query string, windowSize int) (string, error) {
	if windowSize <= 0 {
		windowSize = 3
	}
	results, err := r.Retrieve(query, windowSize)
	if err != nil {
		return "", err
	}
	return formatContext(results, windowSize), nil
}

func formatContext(results []domain.RetrievalResult, windowSize int) string {
	if len(results) == 0 {
		return NoResultsContext
	}
	if len(results) > windowSize {
		results = results[:windowSize]
	}
	parts := make([]string, len(results))
	for i, res := range results {
		parts[i] = fmt.Sprintf("[Source: %s]\n%s", SourceName(res.Metadata, i), res.Document)
	}
	return strings.Join(parts, "\n\n")
}

// Explanation describes a retrieval pass for debugging and query tuning.
type Explanation struct {
	Query         string
	TotalResults  int
	ThresholdUsed float64
	TopK          int
	Results       []domain.RetrievalResult
	HighestScore  float64
	LowestScore   float64
	AverageScore  float64
}

// Explain runs a retrieval and reports score statistics alongside the results.
func (r *Retriever) Explain(query string, k int) (Explanation, error) {
	if k <= 0 {
		k = r.topK
	}
	results, err := r.Retrieve(query, k)
	if err != nil {
		return Explanation{}, err
	}
	return buildExplanation(query, k, r.threshold, results), nil
}

func buildExplanation(query string, k int, threshold float64, results []domain.RetrievalResult) Explanation {
	ex := Explanation{
		Query:         query,
		TotalResults:  len(results),
		ThresholdUsed: threshold,
		TopK:          k,
		Results:       results,
	}
	if len(results) > 0 {
		ex.HighestScore = results[0].RelevanceScore
		ex.LowestScore = results[0].RelevanceScore
		sum := 0.0
		for _, res := range results {
			if res.RelevanceScore > ex.HighestScore {
				ex.HighestScore = res.RelevanceScore
			}
			if res.RelevanceScore < ex.LowestScore {
				ex.LowestScore = res.RelevanceScore
			}
			sum += res.RelevanceScore
		}
		ex.AverageScore = sum / float64(len(results))
	}
	return ex
}

// SourceName extracts the source label from metadata, falling back to a
// positional name when the field is missing. Metadata is advisory, so a
// missing field is never an error.
func SourceName(metadata map[string]string, position int) string {
	if s, ok := metadata["source"]; ok && s != "" {
		return s
	}
	return fmt.Sprintf("Document %d", position+1)
}

func metadataMatches(metadata, filter map[string]string) bool {
	for key, want := range filter {
		if metadata[key] != want {
			return false
		}
	}
	return true
}
