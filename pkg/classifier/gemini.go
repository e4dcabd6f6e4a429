package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// GeminiClassifier implements Port using the Gemini generateContent API
type GeminiClassifier struct {
	apiKey string
}

func NewGeminiClassifier(apiKey string) *GeminiClassifier {
	return &GeminiClassifier{apiKey: apiKey}
}

func (g *GeminiClassifier) Classify(ctx context.Context, content string, labels []string) ([]LabelScore, error) {
	if content == "" || len(labels) == 0 {
		return nil, nil
	}

	url := "https://generativelanguage.googleapis.com/v1beta/models/gemini-2.5-flash:generateContent?key=" + g.apiKey

	labelList, _ := json.Marshal(labels)
	prompt := fmt.Sprintf(`You are a zero-shot text classifier. For the text below, score how well it matches EACH candidate label.

RULES:
- Score each label independently with a confidence between 0.0 and 1.0.
- 1.0 means the text clearly matches the label, 0.0 means no relation at all.
- Return ONLY a JSON array of objects: [{"label": "<label>", "score": <0..1>}]
- Return one object per candidate label, no other text.

CANDIDATE LABELS:
%s

TEXT:
%s

JSON OUTPUT:`, string(labelList), content)

	payload := map[string]interface{}{
		"contents": []map[string]interface{}{
			{"parts": []map[string]string{{"text": prompt}}},
		},
	}

	body, _ := json.Marshal(payload)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	client := &http.Client{}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Gemini API error: %s", string(respBody))
	}

	var result map[string]interface{}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, err
	}

	text := extractCandidateText(result)
	if text == "" {
		return nil, fmt.Errorf("no classification returned")
	}

	return parseLabelScores(text, labels)
}

// extractCandidateText digs the generated text out of a generateContent response
func extractCandidateText(result map[string]interface{}) string {
	if c, ok := result["candidates"].([]interface{}); ok && len(c) > 0 {
		if cand, ok := c[0].(map[string]interface{}); ok {
			if content, ok := cand["content"].(map[string]interface{}); ok {
				if parts, ok := content["parts"].([]interface{}); ok && len(parts) > 0 {
					if part, ok := parts[0].(map[string]interface{}); ok {
						if text, ok := part["text"].(string); ok {
							return text
						}
					}
				}
			}
		}
	}
	return ""
}

// parseLabelScores parses the model's JSON array, drops unknown labels and
// clamps scores into [0,1]
func parseLabelScores(text string, labels []string) ([]LabelScore, error) {
	text = strings.TrimSpace(text)
	// Clean up markdown code blocks if present
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	text = strings.TrimSpace(text)

	jsonStart := strings.Index(text, "[")
	jsonEnd := strings.LastIndex(text, "]")
	if jsonStart != -1 && jsonEnd != -1 && jsonEnd > jsonStart {
		text = text[jsonStart : jsonEnd+1]
	}

	var raw []LabelScore
	if err := json.Unmarshal([]byte(text), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse classification JSON: %v", err)
	}

	known := make(map[string]bool, len(labels))
	for _, l := range labels {
		known[l] = true
	}

	scores := make([]LabelScore, 0, len(raw))
	for _, ls := range raw {
		if !known[ls.Label] {
			continue
		}
		if ls.Score < 0 {
			ls.Score = 0
		}
		if ls.Score > 1 {
			ls.Score = 1
		}
		scores = append(scores, ls)
	}

	return scores, nil
}
