package flat

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/domain"
	"ragkit/internal/embedding"
	"ragkit/internal/embedding/tfidf"
)

// stubEmbedder maps known words to fixed unit vectors. Its dimension is
// fixed, so Prepare never forces a re-embed.
type stubEmbedder struct {
	batches [][]string
}

func (s *stubEmbedder) Name() string { return "stub" }

func (s *stubEmbedder) Prepare(corpus []string) error { return nil }

func (s *stubEmbedder) Dimension() int { return 3 }

func (s *stubEmbedder) Embed(texts []string) ([][]float64, error) {
	s.batches = append(s.batches, texts)
	out := make([][]float64, len(texts))
	for i, text := range texts {
		switch text {
		case "apples":
			out[i] = []float64{1, 0, 0}
		case "oranges":
			out[i] = []float64{0.8, 0.6, 0}
		default:
			out[i] = []float64{0, 0, 1}
		}
	}
	return out, nil
}

// growingEmbedder changes dimension on every Prepare, like a
// vocabulary-based vectorizer does when the corpus grows.
type growingEmbedder struct {
	stubEmbedder
	dim int
}

func (g *growingEmbedder) Prepare(corpus []string) error {
	g.dim = len(corpus)
	return nil
}

func (g *growingEmbedder) Dimension() int { return g.dim }

func newTestStore(t *testing.T, emb embedding.Embedder) *Store {
	t.Helper()
	s, err := NewStore(emb, Config{Collection: "test", Directory: t.TempDir()})
	require.NoError(t, err)
	return s
}

func TestAddSynthesizesDefaultMetadata(t *testing.T) {
	s := newTestStore(t, &stubEmbedder{})

	require.NoError(t, s.Add([]string{"apples", "oranges"}, nil))
	require.NoError(t, s.Add([]string{"pears"}, nil))

	hits, err := s.Search("apples", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	names := map[string]string{}
	for _, h := range hits {
		names[h.Document] = h.Metadata["source"]
	}
	// Default sources number across Add calls, not per call.
	assert.Equal(t, "doc_0", names["apples"])
	assert.Equal(t, "doc_1", names["oranges"])
	assert.Equal(t, "doc_2", names["pears"])
}

func TestSearchOrdersByAscendingDistance(t *testing.T) {
	s := newTestStore(t, &stubEmbedder{})
	require.NoError(t, s.Add([]string{"oranges", "unrelated", "apples"}, nil))

	hits, err := s.Search("apples", 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "apples", hits[0].Document)
	assert.InDelta(t, 0.0, hits[0].Distance, 1e-9)
	assert.Equal(t, "oranges", hits[1].Document)
	assert.Equal(t, "unrelated", hits[2].Document)
	for i := 1; i < len(hits); i++ {
		assert.GreaterOrEqual(t, hits[i].Distance, hits[i-1].Distance)
	}
}

func TestSearchTruncatesToK(t *testing.T) {
	s := newTestStore(t, &stubEmbedder{})
	require.NoError(t, s.Add([]string{"a", "b", "c", "d"}, nil))

	hits, err := s.Search("a", 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearchEmptyCollection(t *testing.T) {
	s := newTestStore(t, &stubEmbedder{})

	hits, err := s.Search("anything", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPersistenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := NewStore(tfidf.NewEmbedder(), Config{Collection: "persist", Directory: dir})
	require.NoError(t, err)
	require.NoError(t, s.Add(
		[]string{"cats chase mice", "dogs bark loudly"},
		[]map[string]string{{"source": "cats.txt"}, {"source": "dogs.txt"}},
	))

	// The fresh embedder has no vocabulary yet; loading the collection
	// must leave the store able to embed queries again.
	reopened, err := NewStore(tfidf.NewEmbedder(), Config{Collection: "persist", Directory: dir})
	require.NoError(t, err)
	hits, err := reopened.Search("cats mice", 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "cats chase mice", hits[0].Document)
	assert.Equal(t, "cats.txt", hits[0].Metadata["source"])
}

func TestAddRejectsMetadataLengthMismatch(t *testing.T) {
	s := newTestStore(t, &stubEmbedder{})

	err := s.Add([]string{"a", "b"}, []map[string]string{{"source": "x"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidConfiguration))
}

func TestDeleteCollectionIsIdempotent(t *testing.T) {
	s := newTestStore(t, &stubEmbedder{})
	require.NoError(t, s.Add([]string{"apples"}, nil))

	require.NoError(t, s.DeleteCollection())
	require.NoError(t, s.DeleteCollection())

	hits, err := s.Search("apples", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDimensionChangeReembedsWholeCorpus(t *testing.T) {
	emb := &growingEmbedder{}
	s := newTestStore(t, emb)

	require.NoError(t, s.Add([]string{"first"}, nil))

	// Second Add grows the vocabulary, so stored vectors are stale and
	// the whole corpus must be embedded again.
	require.NoError(t, s.Add([]string{"second"}, nil))
	last := emb.batches[len(emb.batches)-1]
	assert.Equal(t, []string{"first", "second"}, last)

	hits, err := s.Search("first", 5)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}
