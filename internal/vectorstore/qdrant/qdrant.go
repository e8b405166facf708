package qdrant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"ragkit/internal/domain"
	"ragkit/internal/embedding"
	"ragkit/internal/vectorstore"
)

// Store is a minimal REST client to Qdrant. It creates the collection
// with cosine distance on first Add and stores document text and
// metadata in point payloads.
type Store struct {
	embedder   embedding.Embedder
	url        string
	apiKey     string
	collection string
	client     *http.Client

	initialized bool
	// In-memory mirror of the upserted corpus, needed to rebuild the
	// collection when a vocabulary-based embedder changes dimension.
	documents []string
	metadata  []map[string]string
}

// Config contains connection details for a Qdrant store.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// NewStore creates a Qdrant-backed vector store.
func NewStore(emb embedding.Embedder, cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	return &Store{
		embedder:   emb,
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// Add embeds the documents and upserts them as points with UUID ids.
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
		// invalidates points already upserted. Rebuild the collection
		// from the full corpus.
		vectors, err := s.embedder.Embed(corpus)
		if err != nil {
			return err
		}
		metas := append(append([]map[string]string{}, s.metadata...), metadata...)
		if err := s.recreateCollection(len(vectors[0])); err != nil {
			return err
		}
		if err := s.upsert(corpus, metas, vectors); err != nil {
			return err
		}
		s.documents = corpus
		s.metadata = metas
		return nil
	}
	vectors, err := s.embedder.Embed(documents)
	if err != nil {
		return err
	}
	if err := s.ensureCollection(len(vectors[0])); err != nil {
		return err
	}
	if err := s.upsert(documents, metadata, vectors); err != nil {
		return err
	}
	s.documents = corpus
	s.metadata = append(s.metadata, metadata...)
	return nil
}

func (s *Store) upsert(documents []string, metadata []map[string]string, vectors [][]float64) error {
	points := make([]map[string]any, len(documents))
	for i := range documents {
		payload := map[string]any{"document": documents[i]}
		for k, v := range metadata[i] {
			payload[k] = v
		}
		points[i] = map[string]any{
			"id":      uuid.New().String(),
			"vector":  vectors[i],
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

// Search embeds the query and returns up to k hits in ascending distance.
func (s *Store) Search(query string, k int) ([]vectorstore.SearchHit, error) {
	if k <= 0 {
		k = 5
	}
	vecs, err := s.embedder.Embed([]string{query})
	if err != nil {
		return nil, err
	}
	req := map[string]any{
		"vector":       vecs[0],
		"limit":        k,
		"with_payload": true,
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		// A collection that was never created holds no documents.
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	hits := make([]vectorstore.SearchHit, 0, len(resp.Result))
	for _, r := range resp.Result {
		hit := vectorstore.SearchHit{
			Metadata: make(map[string]string, len(r.Payload)),
			// Qdrant reports cosine similarity as score
			Distance: vectorstore.ClampDistance(r.Score),
		}
		for key, v := range r.Payload {
			sv, ok := v.(string)
			if !ok {
				continue
			}
			if key == "document" {
				hit.Document = sv
			} else {
				hit.Metadata[key] = sv
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

// DeleteCollection drops the collection. Missing collections are not an error.
func (s *Store) DeleteCollection() error {
	if err := s.dropCollection(); err != nil {
		return err
	}
	s.initialized = false
	s.documents = nil
	s.metadata = nil
	return nil
}

func (s *Store) dropCollection() error {
	req, _ := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant delete: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusNotFound {
		return fmt.Errorf("qdrant delete collection failed: %s", resp.Status)
	}
	return nil
}

func (s *Store) recreateCollection(dimension int) error {
	if err := s.dropCollection(); err != nil {
		return err
	}
	s.initialized = false
	return s.ensureCollection(dimension)
}

func (s *Store) ensureCollection(dimension int) error {
	if s.initialized {
		return nil
	}
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	// Qdrant returns 200 if the collection exists with the same schema and
	// 409 on an incompatible one.
	if err := s.putJSON(fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		var se *statusError
		if errors.As(err, &se) && se.code == http.StatusConflict {
			return fmt.Errorf("%w: collection %q exists with an incompatible schema", domain.ErrInvalidConfiguration, s.collection)
		}
		return err
	}
	s.initialized = true
	return nil
}

type statusError struct {
	method string
	url    string
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s failed: %s", e.method, e.url, e.status)
}

func (s *Store) putJSON(url string, body any) error {
	return s.doJSON(http.MethodPut, url, body, nil)
}

func (s *Store) postJSON(url string, body any, out any) error {
	return s.doJSON(http.MethodPost, url, body, out)
}

func (s *Store) doJSON(method, url string, body any, out any) error {
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(method, url, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: qdrant %s: %v", domain.ErrDependencyUnavailable, method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status}
	}
	if out != nil {
		dec := json.NewDecoder(resp.Body)
		return dec.Decode(out)
	}
	return nil
}
