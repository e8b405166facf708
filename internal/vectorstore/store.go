package vectorstore

import "fmt"

// SearchHit is one similarity-search match. Distance is cosine distance
// clamped to [0,1]: 0 means identical, ordering is ascending distance.
type SearchHit struct {
	Document string
	Metadata map[string]string
	Distance float64
}

// Store persists documents with their vectors and supports similarity
// search by query text. Add is cumulative and safe to call repeatedly;
// DeleteCollection is idempotent.
type Store interface {
	Add(documents []string, metadata []map[string]string) error
	Search(query string, k int) ([]SearchHit, error)
	DeleteCollection() error
}

// DefaultMetadata synthesizes {source: doc_<i>} entries when the caller
// provided none. offset keeps ids unique across cumulative Add calls.
func DefaultMetadata(n, offset int) []map[string]string {
	out := make([]map[string]string, n)
	for i := range out {
		out[i] = map[string]string{"source": fmt.Sprintf("doc_%d", offset+i)}
	}
	return out
}

// ClampDistance converts a cosine similarity into a distance in [0,1].
func ClampDistance(similarity float64) float64 {
	d := 1 - similarity
	if d < 0 {
		return 0
	}
	if d > 1 {
		return 1
	}
	return d
}
