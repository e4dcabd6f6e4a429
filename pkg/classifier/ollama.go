package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// OllamaClassifier implements Port against a local Ollama server
type OllamaClassifier struct {
	baseURL string
	model   string
	client  *http.Client
}

func NewOllamaClassifier(baseURL, model string) *OllamaClassifier {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	return &OllamaClassifier{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaGenerateRequest struct {
	Model   string                 `json:"model"`
	Prompt  string                 `json:"prompt"`
	Stream  bool                   `json:"stream"`
	Options map[string]interface{} `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

func (o *OllamaClassifier) Classify(ctx context.Context, content string, labels []string) ([]LabelScore, error) {
	if content == "" || len(labels) == 0 {
		return nil, nil
	}

	labelList, _ := json.Marshal(labels)
	prompt := fmt.Sprintf(`You are a zero-shot text classifier. Score how well the text matches EACH candidate label.

Return ONLY a JSON array [{"label": "<label>", "score": <0.0..1.0>}], one object per candidate label, no other text.

CANDIDATE LABELS:
%s

TEXT:
%s

JSON OUTPUT:`, string(labelList), content)

	reqBody := ollamaGenerateRequest{
		Model:  o.model,
		Prompt: prompt,
		Stream: false,
		Options: map[string]interface{}{
			"temperature": 0.1,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, "POST", o.baseURL+"/api/generate", bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Ollama: %v", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Ollama API error: %s", string(respBody))
	}

	var result ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	if result.Response == "" {
		return nil, fmt.Errorf("no classification returned")
	}

	return parseLabelScores(result.Response, labels)
}
