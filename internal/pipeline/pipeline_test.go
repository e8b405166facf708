package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/generator"
	"ragkit/internal/retriever"
	"ragkit/internal/vectorstore"
)

// stubStore records Add calls and serves the same hits for every query.
type stubStore struct {
	addedDocs  [][]string
	addedMetas [][]map[string]string
	hits       []vectorstore.SearchHit
	deleted    int
}

func (s *stubStore) Add(documents []string, metadata []map[string]string) error {
	s.addedDocs = append(s.addedDocs, documents)
	s.addedMetas = append(s.addedMetas, metadata)
	return nil
}

func (s *stubStore) Search(query string, k int) ([]vectorstore.SearchHit, error) {
	hits := s.hits
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *stubStore) DeleteCollection() error {
	s.deleted++
	return nil
}

type stubLLM struct{ reply string }

func (s *stubLLM) Name() string { return "stub-model" }

func (s *stubLLM) Generate(prompt string, opts generator.Options) (string, error) {
	return s.reply, nil
}

func newTestPipeline(store *stubStore, reply string) *Pipeline {
	retr := retriever.New(store, 3, 0)
	gen := generator.New(&stubLLM{reply: reply})
	return New(store, retr, gen, Config{TopK: 3})
}

func TestAddDocumentsWithoutChunking(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, "ok")

	summary, err := p.AddDocuments([]string{"A", "B", "C"}, nil, 1000, 200)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.DocumentsAdded)
	assert.Equal(t, 3, summary.ChunksCreated)
	assert.False(t, summary.Timestamp.IsZero())
	require.Len(t, store.addedDocs, 1)
	assert.Equal(t, []string{"A", "B", "C"}, store.addedDocs[0])
	// No metadata given: the store synthesizes defaults.
	assert.Nil(t, store.addedMetas[0])
}

func TestAddDocumentsChunksLargeDocuments(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, "ok")
	big := strings.Repeat("x", 250)

	summary, err := p.AddDocuments([]string{big, "small"}, nil, 100, 20)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.DocumentsAdded)
	// 3 chunks for the large document plus the small one untouched.
	assert.Equal(t, 4, summary.ChunksCreated)
	require.Len(t, store.addedDocs, 1)
	assert.Len(t, store.addedDocs[0], 4)
	assert.Equal(t, "doc_0", store.addedMetas[0][0]["source"])
	assert.Equal(t, "doc_1", store.addedMetas[0][3]["source"])
	assert.Equal(t, "0", store.addedMetas[0][0]["chunk"])
}

func TestAddDocumentsMetadataLengthMismatch(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, "ok")

	_, err := p.AddDocuments([]string{"A", "B"}, []map[string]string{{"source": "x"}}, 100, 20)
	require.Error(t, err)
}

func TestQueryEmptyCollectionShortCircuits(t *testing.T) {
	store := &stubStore{}
	p := newTestPipeline(store, "never used")

	res, err := p.Query("anything", QueryOptions{IncludeSources: true})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Answer, "I couldn't find"))
	assert.Empty(t, res.Sources)
	assert.Empty(t, res.ContextUsed)
	assert.Equal(t, 0, res.RetrievedDocsCount)
	assert.Zero(t, res.GenerationTime)
	// Empty-result queries are not tracked in analytics.
	assert.Empty(t, p.QueryHistory())
}

func TestQueryWithSources(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "relevant text", Metadata: map[string]string{"source": "a.txt"}, Distance: 0.1},
	}}
	p := newTestPipeline(store, "an answer [1]")

	res, err := p.Query("q", QueryOptions{IncludeSources: true})
	require.NoError(t, err)
	assert.Equal(t, "an answer [1]", res.Answer)
	require.Len(t, res.Sources, 1)
	assert.Equal(t, "a.txt", res.Sources[0].Name)
	assert.Equal(t, 1, res.RetrievedDocsCount)
	assert.GreaterOrEqual(t, res.TotalTime, res.GenerationTime)
	require.Len(t, p.QueryHistory(), 1)
	assert.Equal(t, len(res.Answer), p.QueryHistory()[0].ResponseLength)
}

func TestConversationHistoryBound(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "text", Metadata: map[string]string{"source": "a.txt"}, Distance: 0.1},
	}}
	p := newTestPipeline(store, "reply")

	for i := 0; i < 13; i++ {
		_, err := p.Query(fmt.Sprintf("question %d", i), QueryOptions{ConversationMode: true})
		require.NoError(t, err)
	}
	history := p.ConversationHistory()
	require.Len(t, history, 10)
	// Oldest evicted first: the 10 most recent turns remain, in order.
	assert.Equal(t, "question 3", history[0].Question)
	assert.Equal(t, "question 12", history[9].Question)
}

func TestNonConversationQueriesLeaveHistoryAlone(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "text", Distance: 0.1},
	}}
	p := newTestPipeline(store, "reply")

	_, err := p.Query("q", QueryOptions{})
	require.NoError(t, err)
	assert.Empty(t, p.ConversationHistory())
}

func TestBatchQueryPreservesOrder(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "text", Distance: 0.1},
	}}
	p := newTestPipeline(store, "reply")
	questions := []string{"first", "second", "third"}

	results, err := p.BatchQuery(questions, QueryOptions{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	for i, res := range results {
		assert.Equal(t, questions[i], res.Question)
	}
}

func TestAnalyticsSentinelWhenEmpty(t *testing.T) {
	p := newTestPipeline(&stubStore{}, "ok")

	a := p.Analytics()
	assert.Equal(t, "No queries processed yet", a.Message)
	assert.Zero(t, a.TotalQueries)
}

func TestAnalyticsAverages(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "text", Distance: 0.1},
	}}
	p := newTestPipeline(store, "four")

	for i := 0; i < 3; i++ {
		_, err := p.Query("q", QueryOptions{})
		require.NoError(t, err)
	}
	a := p.Analytics()
	assert.Empty(t, a.Message)
	assert.Equal(t, 3, a.TotalQueries)
	assert.InDelta(t, 4.0, a.AverageResponseLength, 1e-9)
	assert.GreaterOrEqual(t, a.AverageTotalTime, a.AverageGenerationTime)
}

func TestExplainQuerySuggestsForEmptyRetrieval(t *testing.T) {
	p := newTestPipeline(&stubStore{}, "ok")

	ex, err := p.ExplainQuery("mystery")
	require.NoError(t, err)
	assert.Equal(t, 0, ex.Retrieval.TotalResults)
	assert.Equal(t, "stub-model", ex.Model)
	assert.NotEmpty(t, ex.Suggestions)
}

func TestSaveAndLoadState(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "text", Distance: 0.1},
	}}
	p := newTestPipeline(store, "reply")
	_, err := p.Query("remember me", QueryOptions{ConversationMode: true})
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, p.SaveState(path))

	restored := newTestPipeline(&stubStore{}, "reply")
	require.NoError(t, restored.LoadState(path))
	require.Len(t, restored.ConversationHistory(), 1)
	assert.Equal(t, "remember me", restored.ConversationHistory()[0].Question)
	assert.Len(t, restored.QueryHistory(), 1)
}

func TestResetConversationAndClearDocuments(t *testing.T) {
	store := &stubStore{hits: []vectorstore.SearchHit{
		{Document: "text", Distance: 0.1},
	}}
	p := newTestPipeline(store, "reply")
	_, err := p.Query("q", QueryOptions{ConversationMode: true})
	require.NoError(t, err)

	p.ResetConversation()
	assert.Empty(t, p.ConversationHistory())

	require.NoError(t, p.ClearDocuments())
	assert.Equal(t, 1, store.deleted)
}
