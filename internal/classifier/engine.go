package classifier

// Engine runs a preprocessed NCHW tensor through a model and returns the raw
// logits, one per label.
type Engine interface {
	Infer(input []float32) ([]float32, error)
	Close() error
}
