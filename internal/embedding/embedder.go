package embedding

// Embedder converts free text into numeric vector representations.
// Implementations may require a preparation phase over the corpus.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(texts []string) ([][]float64, error)
}
