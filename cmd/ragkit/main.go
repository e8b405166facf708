package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"ragkit/internal/config"
	"ragkit/internal/embedding"
	embopenai "ragkit/internal/embedding/openai"
	"ragkit/internal/embedding/tfidf"
	"ragkit/internal/generator"
	llmollama "ragkit/internal/generator/ollama"
	llmopenai "ragkit/internal/generator/openai"
	"ragkit/internal/pipeline"
	"ragkit/internal/retriever"
	"ragkit/internal/tui"
	"ragkit/internal/vectorstore"
	"ragkit/internal/vectorstore/flat"
	"ragkit/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	var withSources, chatMode bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/ragkit/config.yaml if not provided)")
	flag.BoolVar(&withSources, "sources", true, "Include numbered source citations in answers")
	flag.BoolVar(&chatMode, "chat", false, "Keep conversation history across questions")
	flag.Parse()
	inputs := flag.Args()
	if len(inputs) == 0 {
		fmt.Println("Usage: ragkit [--config=config.yaml] [--chat] file1.txt [file2.txt ...]")
		os.Exit(1)
	}

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Assemble components
	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "tfidf", "":
		emb = tfidf.NewEmbedder()
	case "openai":
		if cfg.Embedder.OpenAI == nil {
			log.Fatalf("openai embedder config missing")
		}
		client, err := embopenai.NewClient(embopenai.Config{
			BaseURL:   cfg.Embedder.OpenAI.BaseURL,
			APIKeyEnv: cfg.Embedder.OpenAI.APIKeyEnv,
			Model:     cfg.Embedder.OpenAI.Model,
			Timeout:   time.Duration(cfg.Embedder.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		emb = client
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var store vectorstore.Store
	switch cfg.VectorStore.Type {
	case "flat", "":
		fcfg := flat.Config{Collection: cfg.Pipeline.Collection}
		if cfg.VectorStore.Flat != nil {
			fcfg.Directory = cfg.VectorStore.Flat.Directory
		}
		store, err = flat.NewStore(emb, fcfg)
		if err != nil {
			log.Fatalf("flat store init failed: %v", err)
		}
	case "qdrant":
		if cfg.VectorStore.Qdrant == nil {
			log.Fatalf("qdrant config missing")
		}
		store = qdrant.NewStore(emb, qdrant.Config{
			URL:        cfg.VectorStore.Qdrant.URL,
			APIKey:     cfg.VectorStore.Qdrant.APIKey,
			Collection: cfg.Pipeline.Collection,
			Timeout:    time.Duration(cfg.VectorStore.Qdrant.TimeoutSecs) * time.Second,
		})
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
	}

	var llm generator.LLM
	switch cfg.LLM.Type {
	case "ollama", "":
		ocfg := llmollama.Config{}
		if cfg.LLM.Ollama != nil {
			ocfg.BaseURL = cfg.LLM.Ollama.BaseURL
			ocfg.Model = cfg.LLM.Ollama.Model
			ocfg.Timeout = time.Duration(cfg.LLM.Ollama.TimeoutSecs) * time.Second
		}
		llm = llmollama.NewClient(ocfg)
	case "openai":
		if cfg.LLM.OpenAI == nil {
			log.Fatalf("openai llm config missing")
		}
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:   cfg.LLM.OpenAI.BaseURL,
			APIKeyEnv: cfg.LLM.OpenAI.APIKeyEnv,
			Model:     cfg.LLM.OpenAI.Model,
			Timeout:   time.Duration(cfg.LLM.OpenAI.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("openai llm init failed: %v", err)
		}
		llm = client
	default:
		log.Fatalf("unknown llm: %s", cfg.LLM.Type)
	}

	var retr pipeline.Retriever
	if cfg.Retriever.MultiQuery {
		retr = retriever.NewMultiQuery(store, cfg.Retriever.TopK, cfg.Retriever.SimilarityThreshold, cfg.Retriever.QueryVariations)
	} else {
		retr = retriever.New(store, cfg.Retriever.TopK, cfg.Retriever.SimilarityThreshold)
	}

	p := pipeline.New(store, retr, generator.New(llm), pipeline.Config{
		Collection:          cfg.Pipeline.Collection,
		TopK:                cfg.Retriever.TopK,
		SimilarityThreshold: cfg.Retriever.SimilarityThreshold,
		ChunkSize:           cfg.Chunker.ChunkSize,
		ChunkOverlap:        cfg.Chunker.ChunkOverlap,
		PreserveBoundaries:  cfg.Chunker.PreserveBoundaries,
	})

	docs, metas, err := readDocuments(inputs)
	if err != nil {
		log.Fatalf("reading documents failed: %v", err)
	}
	summary, err := p.AddDocuments(docs, metas, cfg.Chunker.ChunkSize, cfg.Chunker.ChunkOverlap)
	if err != nil {
		log.Fatalf("ingest failed: %v", err)
	}

	status := fmt.Sprintf("Indexed %d documents as %d chunks in %s. Ask away.",
		summary.DocumentsAdded, summary.ChunksCreated, summary.ProcessingTime.Round(time.Millisecond))
	m := tui.New(p, tui.Options{IncludeSources: withSources, ConversationMode: chatMode}, status)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

func readDocuments(paths []string) ([]string, []map[string]string, error) {
	var docs []string
	var metas []map[string]string
	for _, p := range paths {
		matches, _ := filepath.Glob(p)
		if matches == nil {
			matches = []string{p}
		}
		for _, m := range matches {
			data, err := os.ReadFile(m)
			if err != nil {
				return nil, nil, err
			}
			docs = append(docs, string(data))
			metas = append(metas, map[string]string{"source": filepath.Base(m)})
		}
	}
	if len(docs) == 0 {
		return nil, nil, fmt.Errorf("no documents found")
	}
	return docs, metas, nil
}
