package retriever

import (
	"crypto/sha1"
	"sort"
	"strings"

	"ragkit/internal/domain"
	"ragkit/internal/vectorstore"
)

// DefaultQueryVariations bounds how many query rewrites are issued.
const DefaultQueryVariations = 3

// MultiQueryRetriever issues several paraphrased variations of a query
// and merges the deduplicated results. The rewrites are fixed string
// heuristics; an LLM-backed rewriter could replace Variations later.
type MultiQueryRetriever struct {
	*Retriever
	variations int
}

// NewMultiQuery creates a multi-query retriever over the given store.
func NewMultiQuery(store vectorstore.Store, topK int, similarityThreshold float64, variations int) *MultiQueryRetriever {
	if variations <= 0 {
		variations = DefaultQueryVariations
	}
	return &MultiQueryRetriever{
		Retriever:  New(store, topK, similarityThreshold),
		variations: variations,
	}
}

// Variations generates rewrites of the query: question-prefix templates
// when the query is not already a question, and the two halves of
// longer queries. The original query always comes first.
func (r *MultiQueryRetriever) Variations(query string) []string {
	variations := []string{query}
	words := strings.Fields(strings.ToLower(query))

	if !strings.HasSuffix(query, "?") {
		variations = append(variations, "What is "+query+"?")
		variations = append(variations, "How does "+query+" work?")
	}
	if len(words) > 2 {
		half := len(words) / 2
		variations = append(variations, strings.Join(words[:half], " "))
		variations = append(variations, strings.Join(words[half:], " "))
	}
	if len(variations) > r.variations {
		variations = variations[:r.variations]
	}
	return variations
}

// Retrieve runs every variation, dedupes candidates by content hash
// keeping the best relevance seen, and returns the merged set sorted
// descending by relevance, truncated to k.
func (r *MultiQueryRetriever) Retrieve(query string, k int) ([]domain.RetrievalResult, error) {
	if k <= 0 {
		k = r.topK
	}
	merged := make(map[[sha1.Size]byte]domain.RetrievalResult)
	for _, variation := range r.Variations(query) {
		results, err := r.Retriever.Retrieve(variation, k)
		if err != nil {
			return nil, err
		}
		for _, res := range results {
			key := sha1.Sum([]byte(res.Document))
			if prev, ok := merged[key]; !ok || res.RelevanceScore > prev.RelevanceScore {
				merged[key] = res
			}
		}
	}
	out := make([]domain.RetrievalResult, 0, len(merged))
	for _, res := range merged {
		out = append(out, res)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RelevanceScore > out[j].RelevanceScore })
	if len(out) > k {
		out = out[:k]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out, nil
}

// ContextWindow formats a merged multi-query retrieval as a context string.
func (r *MultiQueryRetriever) ContextWindow(query string, windowSize int) (string, error) {
	if windowSize <= 0 {
		windowSize = 3
	}
	results, err := r.Retrieve(query, windowSize)
	if err != nil {
		return "", err
	}
	return formatContext(results, windowSize), nil
}

// Explain runs a merged multi-query retrieval and reports score statistics.
func (r *MultiQueryRetriever) Explain(query string, k int) (Explanation, error) {
	if k <= 0 {
		k = r.topK
	}
	results, err := r.Retrieve(query, k)
	if err != nil {
		return Explanation{}, err
	}
	return buildExplanation(query, k, r.threshold, results), nil
}
