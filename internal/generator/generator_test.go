package generator

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragkit/internal/domain"
)

// stubLLM records prompts and serves a canned reply or error.
type stubLLM struct {
	reply   string
	err     error
	prompts []string
}

func (s *stubLLM) Name() string { return "stub-model" }

func (s *stubLLM) Generate(prompt string, opts Options) (string, error) {
	s.prompts = append(s.prompts, prompt)
	if s.err != nil {
		return "", s.err
	}
	return s.reply, s.err
}

func TestGenerateFillsTemplate(t *testing.T) {
	llm := &stubLLM{reply: "the answer"}
	g := New(llm)

	result := g.Generate("What is Go?", "Go is a programming language.", Options{})
	assert.Equal(t, "What is Go?", result.Question)
	assert.Equal(t, "the answer", result.Answer)
	assert.Equal(t, "Go is a programming language.", result.ContextUsed)
	assert.Equal(t, "stub-model", result.Model)
	require.Len(t, llm.prompts, 1)
	assert.Contains(t, llm.prompts[0], "Context:\nGo is a programming language.")
	assert.Contains(t, llm.prompts[0], "Question: What is Go?")
	// The constructed prompt is always echoed back for debuggability.
	assert.Equal(t, llm.prompts[0], result.Prompt)
}

func TestGenerateAppliesDefaultParams(t *testing.T) {
	g := New(&stubLLM{reply: "ok"})

	result := g.Generate("q", "ctx", Options{})
	assert.InDelta(t, 0.7, result.Params.Temperature, 1e-9)
	assert.Equal(t, 1000, result.Params.MaxTokens)
	assert.InDelta(t, 1.0, result.Params.TopP, 1e-9)
}

func TestGenerateWithCitationsNumbersSources(t *testing.T) {
	llm := &stubLLM{reply: "cited answer [1]"}
	g := New(llm)
	retrieved := []domain.RetrievalResult{
		{Document: "first doc", Metadata: map[string]string{"source": "a.txt"}, RelevanceScore: 0.9},
		{Document: "second doc", RelevanceScore: 0.8},
	}

	result := g.GenerateWithCitations("q", retrieved, Options{})
	require.Len(t, result.Sources, 2)
	assert.Equal(t, "[1]", result.Sources[0].ID)
	assert.Equal(t, "a.txt", result.Sources[0].Name)
	assert.InDelta(t, 0.9, result.Sources[0].RelevanceScore, 1e-9)
	assert.Equal(t, "[2]", result.Sources[1].ID)
	assert.Equal(t, "Document 2", result.Sources[1].Name)
	assert.Equal(t, "[1] first doc\n\n[2] second doc", result.ContextUsed)
	assert.Contains(t, result.Prompt, "include the source number in brackets")
}

func TestGenerateConversationalKeepsRecentTurns(t *testing.T) {
	llm := &stubLLM{reply: "ok"}
	g := New(llm)
	var history []domain.ConversationTurn
	for _, q := range []string{"one", "two", "three", "four", "five"} {
		history = append(history, domain.ConversationTurn{
			Question:  "question " + q,
			Answer:    "answer " + q,
			Timestamp: time.Now(),
		})
	}

	result := g.GenerateConversational("current", "ctx", history, Options{})
	// Only the last 3 exchanges reach the prompt.
	assert.NotContains(t, result.Prompt, "question one")
	assert.NotContains(t, result.Prompt, "question two")
	assert.Contains(t, result.Prompt, "Human: question three")
	assert.Contains(t, result.Prompt, "Assistant: answer five")
	assert.Contains(t, result.Prompt, "Current Question: current")
}

func TestGenerationFailureBecomesAnswerText(t *testing.T) {
	llm := &stubLLM{err: errors.New("backend down")}
	g := New(llm)

	result := g.Generate("q", "ctx", Options{})
	assert.True(t, strings.HasPrefix(result.Answer, "Error generating response:"))
	assert.Contains(t, result.Answer, "backend down")
}

func TestCustomTemplate(t *testing.T) {
	llm := &stubLLM{reply: "ok"}
	g := NewWithTemplate(llm, "CTX={context} Q={question}")

	result := g.Generate("why", "because", Options{})
	assert.Equal(t, "CTX=because Q=why", result.Prompt)
}
