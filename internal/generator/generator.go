package generator

import (
	"fmt"
	"strings"

	"ragkit/internal/domain"
	"ragkit/internal/retriever"
)

// promptHistoryTurns bounds how many past exchanges are replayed into a
// conversational prompt. The pipeline keeps a longer history; only this
// window reaches the model to bound prompt length.
const promptHistoryTurns = 3

const defaultTemplate = `You are a helpful AI assistant. Use the following context to answer the user's question. If the context doesn't contain relevant information, say so clearly.

Context:
{context}

Question: {question}

Answer: Please provide a comprehensive answer based on the context above. If the context doesn't contain sufficient information to answer the question, please state that clearly and provide what information you can.`

const citationTemplate = `You are a helpful AI assistant. Use the following numbered context sources to answer the user's question. When you reference information from the context, include the source number in brackets like [1] or [2].

Context Sources:
{context}

Question: {question}

Answer: Please provide a comprehensive answer based on the context sources above. Include source citations [1], [2], etc. when referencing specific information. If the context doesn't contain sufficient information, state that clearly.`

const conversationalTemplate = `You are a helpful AI assistant engaged in a conversation. Use the following context and conversation history to provide a natural, conversational response.

Document Context:
{context}

Previous Conversation:
{conversation_context}

Current Question: {question}

Answer: Please provide a natural, conversational response that considers both the document context and the conversation history. Reference previous parts of the conversation when relevant.`

// Source identifies one cited context document.
type Source struct {
	ID             string
	Name           string
	RelevanceScore float64
	Metadata       map[string]string
}

// Result is a structured generation outcome. The constructed prompt is
// always included for debuggability.
type Result struct {
	Question    string
	Answer      string
	ContextUsed string
	Sources     []Source
	Prompt      string
	Model       string
	Params      Options
}

// ResponseGenerator formats prompts from retrieved context and delegates
// to an LLM backend. A failed generation becomes a textual error in the
// answer rather than an error return: the answer is user-facing, and in
// an interactive context a message is more useful than an aborted call.
type ResponseGenerator struct {
	llm      LLM
	template string
}

// New creates a generator with the default prompt template.
func New(llm LLM) *ResponseGenerator {
	return &ResponseGenerator{llm: llm, template: defaultTemplate}
}

// Model returns the backend identifier.
func (g *ResponseGenerator) Model() string { return g.llm.Name() }

// NewWithTemplate creates a generator with a custom template. The
// template must contain {context} and {question} slots.
func NewWithTemplate(llm LLM, template string) *ResponseGenerator {
	if template == "" {
		template = defaultTemplate
	}
	return &ResponseGenerator{llm: llm, template: template}
}

// Generate answers a question from pre-assembled context.
func (g *ResponseGenerator) Generate(question, context string, opts Options) Result {
	opts = opts.WithDefaults()
	prompt := fillTemplate(g.template, map[string]string{
		"context":  context,
		"question": question,
	})
	return Result{
		Question:    question,
		Answer:      g.generate(prompt, opts),
		ContextUsed: context,
		Prompt:      prompt,
		Model:       g.llm.Name(),
		Params:      opts,
	}
}

// GenerateWithCitations numbers each retrieved document as a context
// source and instructs the model to cite them inline. Citation
// correctness is prompt-engineered, not verified against the answer.
func (g *ResponseGenerator) GenerateWithCitations(question string, retrieved []domain.RetrievalResult, opts Options) Result {
	opts = opts.WithDefaults()
	contextParts := make([]string, len(retrieved))
	sources := make([]Source, len(retrieved))
	for i, res := range retrieved {
		id := fmt.Sprintf("[%d]", i+1)
		contextParts[i] = fmt.Sprintf("%s %s", id, res.Document)
		sources[i] = Source{
			ID:             id,
			Name:           retriever.SourceName(res.Metadata, i),
			RelevanceScore: res.RelevanceScore,
			Metadata:       res.Metadata,
		}
	}
	context := strings.Join(contextParts, "\n\n")
	prompt := fillTemplate(citationTemplate, map[string]string{
		"context":  context,
		"question": question,
	})
	return Result{
		Question:    question,
		Answer:      g.generate(prompt, opts),
		ContextUsed: context,
		Sources:     sources,
		Prompt:      prompt,
		Model:       g.llm.Name(),
		Params:      opts,
	}
}

// GenerateConversational prepends recent conversation history to the
// prompt. History beyond the prompt window is deliberately dropped.
func (g *ResponseGenerator) GenerateConversational(question, context string, history []domain.ConversationTurn, opts Options) Result {
	opts = opts.WithDefaults()
	var convParts []string
	start := len(history) - promptHistoryTurns
	if start < 0 {
		start = 0
	}
	for _, turn := range history[start:] {
		convParts = append(convParts, "Human: "+turn.Question)
		convParts = append(convParts, "Assistant: "+turn.Answer)
	}
	prompt := fillTemplate(conversationalTemplate, map[string]string{
		"context":              context,
		"conversation_context": strings.Join(convParts, "\n"),
		"question":             question,
	})
	return Result{
		Question:    question,
		Answer:      g.generate(prompt, opts),
		ContextUsed: context,
		Prompt:      prompt,
		Model:       g.llm.Name(),
		Params:      opts,
	}
}

// generate collapses backend errors into answer text (soft-failure policy).
func (g *ResponseGenerator) generate(prompt string, opts Options) string {
	answer, err := g.llm.Generate(prompt, opts)
	if err != nil {
		return fmt.Sprintf("Error generating response: %v", err)
	}
	return answer
}

func fillTemplate(template string, slots map[string]string) string {
	out := template
	for name, value := range slots {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}
