package classifier

import (
	"fmt"
)

// Config holds classifier provider configuration
type Config struct {
	Provider ProviderType // "gemini" or "ollama"

	// Gemini config
	GeminiAPIKey string

	// Ollama config
	OllamaBaseURL string // e.g., "http://localhost:11434"
	OllamaModel   string // e.g., "llama3.2", "mistral"
}

// New creates a classifier Port based on the config
// This is the factory function - switch provider by changing config.Provider
func New(cfg Config) (Port, error) {
	switch cfg.Provider {
	case ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required for Gemini provider")
		}
		return NewGeminiClassifier(cfg.GeminiAPIKey), nil

	case ProviderOllama:
		return NewOllamaClassifier(cfg.OllamaBaseURL, cfg.OllamaModel), nil

	default:
		// Default: both providers with fallback routing when a Gemini key
		// is available, otherwise Ollama alone
		if cfg.GeminiAPIKey != "" {
			gemini := NewGeminiClassifier(cfg.GeminiAPIKey)
			ollama := NewOllamaClassifier(cfg.OllamaBaseURL, cfg.OllamaModel)
			return NewFallbackClassifier(gemini, ollama), nil
		}
		return NewOllamaClassifier(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	}
}
