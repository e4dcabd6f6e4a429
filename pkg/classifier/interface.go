package classifier

import "context"

// LabelScore is one label's match confidence in [0,1] for a piece of text
type LabelScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Port is the interface for zero-shot text classification.
// Implement this interface to add new providers (Gemini, Ollama, etc.)
type Port interface {
	// Classify scores content against each candidate label. A missing label in
	// the result means the provider produced no usable score for it.
	Classify(ctx context.Context, content string, labels []string) ([]LabelScore, error)
}

// ProviderType represents the classifier provider type
type ProviderType string

const (
	ProviderGemini ProviderType = "gemini"
	ProviderOllama ProviderType = "ollama"
	ProviderAuto   ProviderType = "auto"
)
