package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "tfidf", cfg.Embedder.Type)
	assert.Equal(t, "flat", cfg.VectorStore.Type)
	assert.Equal(t, "ollama", cfg.LLM.Type)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 200, cfg.Chunker.ChunkOverlap)
	assert.True(t, cfg.Chunker.PreserveBoundaries)
	assert.Equal(t, 5, cfg.Retriever.TopK)
	assert.InDelta(t, 0.3, cfg.Retriever.SimilarityThreshold, 1e-9)
	assert.Equal(t, "documents", cfg.Pipeline.Collection)
}

func TestLoadAppliesDefaultsToPartialConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
embedder:
  type: openai
  openai:
    model: text-embedding-3-large
retriever:
  similarity_threshold: 0.5
llm:
  type: openai
  openai: {}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "openai", cfg.Embedder.Type)
	assert.Equal(t, "text-embedding-3-large", cfg.Embedder.OpenAI.Model)
	assert.Equal(t, "https://api.openai.com/v1", cfg.Embedder.OpenAI.BaseURL)
	assert.Equal(t, "OPENAI_API_KEY", cfg.Embedder.OpenAI.APIKeyEnv)
	assert.Equal(t, 30, cfg.Embedder.OpenAI.TimeoutSecs)
	assert.Equal(t, "gpt-3.5-turbo", cfg.LLM.OpenAI.Model)
	assert.Equal(t, 60, cfg.LLM.OpenAI.TimeoutSecs)
	assert.Equal(t, 1000, cfg.Chunker.ChunkSize)
	assert.Equal(t, 5, cfg.Retriever.TopK)
	assert.InDelta(t, 0.5, cfg.Retriever.SimilarityThreshold, 1e-9)
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("embedder: [unclosed"), 0o644))

	_, err := Load(path)
	require.Error(t, err)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "tfidf"},
		Chunker:     ChunkerConfig{ChunkSize: 500, ChunkOverlap: 50},
		VectorStore: VectorStoreConfig{Type: "qdrant", Qdrant: &QdrantConfig{URL: "http://localhost:6333"}},
		Retriever:   RetrieverConfig{TopK: 7, SimilarityThreshold: 0.4, MultiQuery: true, QueryVariations: 4},
		LLM:         LLMConfig{Type: "ollama", Ollama: &OllamaLLMConfig{Model: "llama3"}},
		Pipeline:    PipelineConfig{Collection: "notes", StatePath: "state.json"},
	}
	require.NoError(t, Save(path, cfg))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg, loaded)
}
