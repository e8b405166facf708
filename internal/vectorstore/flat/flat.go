package flat

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"

	"ragkit/internal/domain"
	"ragkit/internal/embedding"
	"ragkit/internal/vectorstore"
)

// Store is an in-process exact vector store using brute-force cosine
// similarity, with JSON persistence under a configurable directory.
type Store struct {
	embedder   embedding.Embedder
	dir        string
	collection string

	documents []string
	metadata  []map[string]string
	vectors   [][]float64
	dimension int
}

// Config configures a flat store.
type Config struct {
	Collection string
	Directory  string
}

// NewStore creates a flat store and loads any persisted collection state.
func NewStore(emb embedding.Embedder, cfg Config) (*Store, error) {
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	if cfg.Directory == "" {
		cfg.Directory = filepath.Join("data", "vector_stores", "flat")
	}
	s := &Store{embedder: emb, dir: cfg.Directory, collection: cfg.Collection}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// Add embeds the documents and appends them to the persisted collection.
func (s *Store) Add(documents []string, metadata []map[string]string) error {
	if len(documents) == 0 {
		return nil
	}
	if metadata == nil {
		metadata = vectorstore.DefaultMetadata(len(documents), len(s.documents))
	}
	if len(metadata) != len(documents) {
		return fmt.Errorf("%w: documents and metadata length mismatch", domain.ErrInvalidConfiguration)
	}

	corpus := append(append([]string{}, s.documents...), documents...)
	prevDim := s.embedder.Dimension()
	if err := s.embedder.Prepare(corpus); err != nil {
		return err
	}
	if s.embedder.Dimension() != prevDim && len(s.documents) > 0 {
		// Vocabulary-based embedders change dimension on Prepare, which
		// invalidates previously stored vectors. Re-embed the whole corpus.
		vectors, err := s.embedder.Embed(corpus)
		if err != nil {
			return err
		}
		s.vectors = vectors
	} else {
		vectors, err := s.embedder.Embed(documents)
		if err != nil {
			return err
		}
		s.vectors = append(s.vectors, vectors...)
	}
	s.documents = corpus
	s.metadata = append(s.metadata, metadata...)
	s.dimension = s.embedder.Dimension()
	return s.save()
}

// Search embeds the query and returns up to k hits in ascending distance.
func (s *Store) Search(query string, k int) ([]vectorstore.SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	if len(s.documents) == 0 {
		return nil, nil
	}
	vecs, err := s.embedder.Embed([]string{query})
	if err != nil {
		return nil, err
	}
	qv := vecs[0]
	hits := make([]vectorstore.SearchHit, len(s.vectors))
	for i, v := range s.vectors {
		hits[i] = vectorstore.SearchHit{
			Document: s.documents[i],
			Metadata: s.metadata[i],
			Distance: vectorstore.ClampDistance(cosine(qv, v)),
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Distance < hits[j].Distance })
	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// DeleteCollection removes all in-memory state and on-disk artifacts.
func (s *Store) DeleteCollection() error {
	s.documents = nil
	s.metadata = nil
	s.vectors = nil
	s.dimension = 0
	err := os.Remove(s.path())
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

type persistedState struct {
	Dimension int                 `json:"dimension"`
	Documents []string            `json:"documents"`
	Metadata  []map[string]string `json:"metadata"`
	Vectors   [][]float64         `json:"vectors"`
}

func (s *Store) path() string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", s.collection))
}

func (s *Store) save() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}
	data, err := json.Marshal(persistedState{
		Dimension: s.dimension,
		Documents: s.documents,
		Metadata:  s.metadata,
		Vectors:   s.vectors,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(), data, 0o644)
}

func (s *Store) load() error {
	data, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	var st persistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	s.dimension = st.Dimension
	s.documents = st.Documents
	s.metadata = st.Metadata
	s.vectors = st.Vectors
	if len(s.documents) > 0 {
		// Vocabulary-based embedders must be prepared before they can
		// embed queries against the restored collection.
		if err := s.embedder.Prepare(s.documents); err != nil {
			return err
		}
	}
	return nil
}

func cosine(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	dot, na, nb := 0.0, 0.0, 0.0
	for i := 0; i < n; i++ {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}
