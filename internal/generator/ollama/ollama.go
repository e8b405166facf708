package ollama

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"ragkit/internal/domain"
	"ragkit/internal/generator"
)

// Client talks to a local Ollama server via its native generate API.
type Client struct {
	baseURL string
	model   string
	client  *http.Client
}

// Config configures the Ollama client.
type Config struct {
	BaseURL string
	Model   string
	Timeout time.Duration
}

// NewClient creates an Ollama client. No credentials are required.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "llama3"
	}
	t := cfg.Timeout
	if t == 0 {
		t = 120 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		model:   cfg.Model,
		client:  &http.Client{Timeout: t},
	}
}

// Name returns the model identifier.
func (c *Client) Name() string { return c.model }

// Generate runs a non-streaming completion.
func (c *Client) Generate(prompt string, opts generator.Options) (string, error) {
	opts = opts.WithDefaults()
	body := map[string]any{
		"model":  c.model,
		"prompt": prompt,
		"stream": false,
		"options": map[string]any{
			"temperature": opts.Temperature,
			"num_predict": opts.MaxTokens,
			"top_p":       opts.TopP,
		},
	}
	data, _ := json.Marshal(body)
	req, _ := http.NewRequest(http.MethodPost, fmt.Sprintf("%s/api/generate", c.baseURL), bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: ollama generate: %v", domain.ErrDependencyUnavailable, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: ollama generate failed: %s", domain.ErrDependencyUnavailable, resp.Status)
	}
	var out struct {
		Response string `json:"response"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.Response == "" {
		return "", errors.New("no completion returned")
	}
	return strings.TrimSpace(out.Response), nil
}
