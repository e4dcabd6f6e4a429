package classifier

import (
	"context"
	"fmt"
	"log"
	"net"
	"strings"
)

// FallbackClassifier routes classification across two providers:
// Gemini first (better quality), fallback to Ollama on quota or
// connection errors.
type FallbackClassifier struct {
	gemini Port
	ollama Port
}

// NewFallbackClassifier creates a fallback classifier with both providers
func NewFallbackClassifier(gemini, ollama Port) *FallbackClassifier {
	return &FallbackClassifier{
		gemini: gemini,
		ollama: ollama,
	}
}

// isConnectionError checks if the error is a network/connection error
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if _, ok := err.(net.Error); ok {
		return true
	}

	errStr := err.Error()
	connectionIndicators := []string{
		"connection refused",
		"no such host",
		"network is unreachable",
		"connection reset",
		"timeout",
		"dial tcp",
		"EOF",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(indicator)) {
			return true
		}
	}

	return false
}

// isQuotaError checks if the error indicates API quota exhaustion (429)
func isQuotaError(err error) bool {
	if err == nil {
		return false
	}

	errStr := err.Error()
	quotaIndicators := []string{
		"429",
		"quota",
		"rate limit",
		"too many requests",
		"resource exhausted",
		"RESOURCE_EXHAUSTED",
	}

	for _, indicator := range quotaIndicators {
		if strings.Contains(strings.ToLower(errStr), strings.ToLower(indicator)) {
			return true
		}
	}

	return false
}

// Classify tries Gemini first, falls back to Ollama on quota or connection error
func (f *FallbackClassifier) Classify(ctx context.Context, content string, labels []string) ([]LabelScore, error) {
	if f.gemini != nil {
		result, err := f.gemini.Classify(ctx, content, labels)
		if err == nil {
			return result, nil
		}

		if isQuotaError(err) {
			log.Printf("[Classifier] Gemini quota exhausted: %v, falling back to Ollama", err)
		} else {
			log.Printf("[Classifier] Gemini error: %v, falling back to Ollama", err)
		}
	}

	if f.ollama != nil {
		result, err := f.ollama.Classify(ctx, content, labels)
		if err == nil {
			return result, nil
		}

		// If Ollama also fails with connection error, try Gemini again
		if isConnectionError(err) && f.gemini != nil {
			log.Printf("[Classifier] Ollama connection failed: %v, retrying Gemini", err)
			return f.gemini.Classify(ctx, content, labels)
		}

		return nil, fmt.Errorf("ollama classification failed: %w", err)
	}

	return nil, fmt.Errorf("no classifier provider available")
}
