package pipeline

import (
	"fmt"
	"time"

	"ragkit/internal/chunker"
	"ragkit/internal/domain"
	"ragkit/internal/generator"
	"ragkit/internal/retriever"
	"ragkit/internal/vectorstore"
)

// maxConversationTurns bounds the conversation history kept by a
// pipeline. Older turns are evicted first (plain FIFO truncation).
const maxConversationTurns = 10

// emptyResultAnswer is the canonical answer when nothing clears the
// similarity threshold.
const emptyResultAnswer = "I couldn't find any relevant information to answer your question."

// Retriever is the pipeline-facing subset of a retriever.
type Retriever interface {
	Retrieve(query string, k int) ([]domain.RetrievalResult, error)
	ContextWindow(query string, windowSize int) (string, error)
	Explain(query string, k int) (retriever.Explanation, error)
}

// Config carries the pipeline's behavioral settings.
type Config struct {
	Collection          string  `json:"collection"`
	TopK                int     `json:"top_k"`
	SimilarityThreshold float64 `json:"similarity_threshold"`
	ChunkSize           int     `json:"chunk_size"`
	ChunkOverlap        int     `json:"chunk_overlap"`
	PreserveBoundaries  bool    `json:"preserve_boundaries"`
}

// Pipeline wires chunking, retrieval and generation into add/query
// entry points and owns the conversation and analytics histories.
// A Pipeline is not thread-safe: concurrent callers must serialize
// access or use one pipeline per logical session.
type Pipeline struct {
	store     vectorstore.Store
	retriever Retriever
	generator *generator.ResponseGenerator
	cfg       Config

	history []domain.ConversationTurn
	records []domain.QueryRecord
}

// New creates a pipeline over the given components.
func New(store vectorstore.Store, retr Retriever, gen *generator.ResponseGenerator, cfg Config) *Pipeline {
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = chunker.DefaultChunkSize
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = chunker.DefaultOverlap
	}
	if cfg.Collection == "" {
		cfg.Collection = "documents"
	}
	return &Pipeline{store: store, retriever: retr, generator: gen, cfg: cfg}
}

// IngestSummary reports the outcome of an AddDocuments call.
type IngestSummary struct {
	DocumentsAdded int
	ChunksCreated  int
	ProcessingTime time.Duration
	Timestamp      time.Time
}

// AddDocuments stores the documents, routing everything through the
// chunker when any document exceeds chunkSize. The batch is
// all-or-nothing: the first error aborts the whole call.
func (p *Pipeline) AddDocuments(documents []string, metadata []map[string]string, chunkSize, chunkOverlap int) (IngestSummary, error) {
	start := time.Now()
	if chunkSize <= 0 {
		chunkSize = p.cfg.ChunkSize
	}
	if chunkOverlap < 0 {
		chunkOverlap = p.cfg.ChunkOverlap
	}
	if metadata != nil && len(metadata) != len(documents) {
		return IngestSummary{}, fmt.Errorf("%w: %d documents but %d metadata entries",
			domain.ErrInvalidConfiguration, len(documents), len(metadata))
	}

	texts := documents
	metas := metadata
	if anyExceeds(documents, chunkSize) {
		var err error
		texts, metas, err = p.chunkAll(documents, metadata, chunkSize, chunkOverlap)
		if err != nil {
			return IngestSummary{}, err
		}
	}
	if err := p.store.Add(texts, metas); err != nil {
		return IngestSummary{}, err
	}
	return IngestSummary{
		DocumentsAdded: len(documents),
		ChunksCreated:  len(texts),
		ProcessingTime: time.Since(start),
		Timestamp:      time.Now(),
	}, nil
}

func (p *Pipeline) chunkAll(documents []string, metadata []map[string]string, chunkSize, chunkOverlap int) ([]string, []map[string]string, error) {
	var texts []string
	var metas []map[string]string
	for i, doc := range documents {
		parent := map[string]string{"source": fmt.Sprintf("doc_%d", i)}
		if metadata != nil {
			parent = metadata[i]
		}
		chunks, err := chunker.Split(domain.Document{Text: doc, Metadata: parent}, chunker.Options{
			ChunkSize:          chunkSize,
			Overlap:            chunkOverlap,
			PreserveBoundaries: p.cfg.PreserveBoundaries,
		})
		if err != nil {
			return nil, nil, err
		}
		for _, ch := range chunks {
			texts = append(texts, ch.Text)
			metas = append(metas, ch.Metadata)
		}
	}
	return texts, metas, nil
}

func anyExceeds(documents []string, chunkSize int) bool {
	for _, doc := range documents {
		if len(doc) > chunkSize {
			return true
		}
	}
	return false
}

// QueryOptions selects the generation mode for a query.
type QueryOptions struct {
	IncludeSources   bool
	ConversationMode bool
	Gen              generator.Options
}

// Response is a generation result decorated with timing and counts.
type Response struct {
	generator.Result
	RetrievalTime      time.Duration
	GenerationTime     time.Duration
	TotalTime          time.Duration
	RetrievedDocsCount int
	Timestamp          time.Time
}

// Query answers a question over the stored documents. Empty retrieval
// short-circuits with a fixed answer, no sources and zero generation
// time; callers distinguish it by RetrievedDocsCount, not by an error.
func (p *Pipeline) Query(question string, opts QueryOptions) (Response, error) {
	start := time.Now()
	retrieved, err := p.retriever.Retrieve(question, p.cfg.TopK)
	if err != nil {
		return Response{}, err
	}
	if len(retrieved) == 0 {
		elapsed := time.Since(start)
		return Response{
			Result: generator.Result{
				Question: question,
				Answer:   emptyResultAnswer,
				Sources:  []generator.Source{},
			},
			RetrievalTime:  elapsed,
			GenerationTime: 0,
			TotalTime:      elapsed,
			Timestamp:      time.Now(),
		}, nil
	}
	retrievalTime := time.Since(start)

	genStart := time.Now()
	var result generator.Result
	switch {
	case opts.IncludeSources:
		result = p.generator.GenerateWithCitations(question, retrieved, opts.Gen)
	case opts.ConversationMode:
		context, err := p.retriever.ContextWindow(question, p.cfg.TopK)
		if err != nil {
			return Response{}, err
		}
		result = p.generator.GenerateConversational(question, context, p.history, opts.Gen)
	default:
		context, err := p.retriever.ContextWindow(question, p.cfg.TopK)
		if err != nil {
			return Response{}, err
		}
		result = p.generator.Generate(question, context, opts.Gen)
	}
	generationTime := time.Since(genStart)
	totalTime := time.Since(start)

	if opts.ConversationMode {
		p.history = append(p.history, domain.ConversationTurn{
			Question:  question,
			Answer:    result.Answer,
			Timestamp: time.Now(),
		})
		if len(p.history) > maxConversationTurns {
			p.history = p.history[len(p.history)-maxConversationTurns:]
		}
	}

	p.records = append(p.records, domain.QueryRecord{
		Question:       question,
		ResponseLength: len(result.Answer),
		RetrievalTime:  retrievalTime,
		GenerationTime: generationTime,
		TotalTime:      totalTime,
		Timestamp:      time.Now(),
	})

	return Response{
		Result:             result,
		RetrievalTime:      retrievalTime,
		GenerationTime:     generationTime,
		TotalTime:          totalTime,
		RetrievedDocsCount: len(retrieved),
		Timestamp:          time.Now(),
	}, nil
}

// BatchQuery runs the questions sequentially; result order matches
// input order. In conversation mode the shared history mutates across
// the batch.
func (p *Pipeline) BatchQuery(questions []string, opts QueryOptions) ([]Response, error) {
	results := make([]Response, 0, len(questions))
	for _, question := range questions {
		res, err := p.Query(question, opts)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, nil
}

// ConversationHistory returns the retained conversation turns.
func (p *Pipeline) ConversationHistory() []domain.ConversationTurn { return p.history }

// QueryHistory returns the accumulated per-query analytics records.
func (p *Pipeline) QueryHistory() []domain.QueryRecord { return p.records }

// ResetConversation clears the conversation history.
func (p *Pipeline) ResetConversation() { p.history = nil }

// ClearDocuments removes all stored documents from the vector store.
func (p *Pipeline) ClearDocuments() error { return p.store.DeleteCollection() }
