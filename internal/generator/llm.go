package generator

// Options are the generation parameters passed to an LLM backend.
type Options struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
}

// WithDefaults fills unset generation parameters.
func (o Options) WithDefaults() Options {
	if o.Temperature == 0 {
		o.Temperature = 0.7
	}
	if o.MaxTokens == 0 {
		o.MaxTokens = 1000
	}
	if o.TopP == 0 {
		o.TopP = 1.0
	}
	return o
}

// LLM is a language-model backend. Generate may fail; the
// ResponseGenerator converts failures into in-band answer text.
type LLM interface {
	Name() string
	Generate(prompt string, opts Options) (string, error)
}
