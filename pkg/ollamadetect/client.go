// Package ollamadetect drives a vision model through the Ollama API as an
// alternate detector backend. The model is prompted for a strict JSON
// detection list; the parse is hardened against fences and comments because
// vision models do not always honor "JSON only".
package ollamadetect

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jmorganca/ollama/api"

	"github.com/dentalvision/espace-analyzer/pkg/client"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// detectionPrompt asks the model for the detector wire contract.
const detectionPrompt = `You are a dental radiograph tooth locator.

The image is a panoramic dental X-ray. Find every primary second molar and
second premolar crown you can see.

Return JSON only:
{
  "detections": [
    {"bbox": [x1, y1, x2, y2], "confidence": 0.0, "class_id": 0, "class_name": "string"}
  ]
}

HARD RULES
- bbox coordinates are PIXELS in the source image, x1<x2, y1<y2.
- class_name is one of: primary_second_molar_upper_left, primary_second_molar_upper_right,
  primary_second_molar_lower_left, primary_second_molar_lower_right,
  second_premolar_upper_left, second_premolar_upper_right,
  second_premolar_lower_left, second_premolar_lower_right.
- confidence is your certainty in [0,1].
- Omit teeth below confidence %.2f.
- If no teeth are visible, return {"detections": []}.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// Client adapts the Ollama chat API to the DetectorClient contract.
type Client struct {
	client *api.Client
}

// NewClient creates a Client against an Ollama server URL.
func NewClient(ollamaURL string) (*Client, error) {
	parsedURL, err := url.Parse(ollamaURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}
	baseURL := &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}
	return &Client{client: api.NewClient(baseURL, http.DefaultClient)}, nil
}

// Detect prompts the vision model and parses its detection list. Detections
// below the confidence threshold are filtered here as well, since the model
// cannot be trusted to apply the threshold itself.
func (c *Client) Detect(ctx context.Context, imgB64 string, opts client.DetectOptions) ([]types.Detection, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, 300*time.Second) // vision models on CPU are slow
		defer cancel()
	}

	imgBytes, err := base64.StdEncoding.DecodeString(imgB64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64 image: %v", err)
	}

	streamFalse := false
	req := &api.ChatRequest{
		Model: opts.Model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: fmt.Sprintf(detectionPrompt, opts.ConfidenceThreshold),
				Images:  []api.ImageData{api.ImageData(imgBytes)},
			},
		},
		Stream: &streamFalse,
	}

	var responseContent string
	err = c.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent = resp.Message.Content
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("ollama chat error: %v", err)
	}
	if responseContent == "" {
		return nil, fmt.Errorf("empty response from ollama")
	}

	detections, err := parseDetections(responseContent)
	if err != nil {
		return nil, err
	}

	filtered := detections[:0]
	for _, d := range detections {
		if d.Confidence >= opts.ConfidenceThreshold {
			filtered = append(filtered, d)
		}
	}
	return filtered, nil
}

type detectionEnvelope struct {
	Detections []types.Detection `json:"detections"`
}

// parseDetections decodes the model's JSON, tolerating the usual decoration.
// A response with no recoverable JSON yields an empty detection list, not an
// error: the model ran, it just found nothing usable.
func parseDetections(raw string) ([]types.Detection, error) {
	raw = sanitizeModelJSON(raw)
	if !strings.HasPrefix(strings.TrimSpace(raw), "{") {
		return nil, nil
	}

	var envelope detectionEnvelope
	if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
		start := strings.Index(raw, "{")
		end := strings.LastIndex(raw, "}")
		if start >= 0 && end > start {
			if err2 := json.Unmarshal([]byte(raw[start:end+1]), &envelope); err2 != nil {
				return nil, nil
			}
		} else {
			return nil, nil
		}
	}
	return envelope.Detections, nil
}

// sanitizeModelJSON removes code fences, comments, and trailing commas.
func sanitizeModelJSON(raw string) string {
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "```") {
		if i := strings.Index(raw, "\n"); i >= 0 {
			raw = raw[i+1:]
		}
		if j := strings.LastIndex(raw, "```"); j >= 0 {
			raw = raw[:j]
		}
	}
	raw = strings.TrimSpace(raw)
	raw = strings.Trim(raw, "`")

	reBlock := regexp.MustCompile(`(?s)/\*.*?\*/`)
	raw = reBlock.ReplaceAllString(raw, "")
	reLine := regexp.MustCompile(`(?m)^\s*//.*$`)
	raw = reLine.ReplaceAllString(raw, "")
	reTrailing := regexp.MustCompile(`,(\s*[}\]])`)
	raw = reTrailing.ReplaceAllString(raw, "$1")

	if start := strings.Index(raw, "{"); start >= 0 {
		if end := strings.LastIndex(raw, "}"); end > start {
			raw = raw[start : end+1]
		}
	}
	return strings.TrimSpace(raw)
}
