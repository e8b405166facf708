package domain

import "time"

// Document is a raw text plus advisory metadata, immutable once stored.
type Document struct {
	Text     string
	Metadata map[string]string
}

// Chunk is a contiguous substring of a document, the unit that gets
// embedded and indexed. Offsets are character positions in the parent.
type Chunk struct {
	Text     string
	Start    int
	End      int
	Index    int
	Metadata map[string]string
}

// RetrievalResult is a scored match produced by a retriever. Relevance
// is derived as 1 - distance; rank is 1-based in result order.
type RetrievalResult struct {
	Document       string
	Metadata       map[string]string
	Distance       float64
	Rank           int
	RelevanceScore float64
}

// ConversationTurn is one question/answer exchange retained for prompt
// continuity in conversational mode.
type ConversationTurn struct {
	Question  string    `json:"question"`
	Answer    string    `json:"answer"`
	Timestamp time.Time `json:"timestamp"`
}

// QueryRecord captures per-query timing and size metrics for analytics.
type QueryRecord struct {
	Question       string        `json:"question"`
	ResponseLength int           `json:"response_length"`
	RetrievalTime  time.Duration `json:"retrieval_time"`
	GenerationTime time.Duration `json:"generation_time"`
	TotalTime      time.Duration `json:"total_time"`
	Timestamp      time.Time     `json:"timestamp"`
}
