// Package restdetect talks to a YOLO-style object detection service over
// HTTP. This is the production detector backend; the model architecture
// behind the endpoint is opaque to the pipeline.
package restdetect

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dentalvision/espace-analyzer/pkg/client"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

const defaultTimeout = 60 * time.Second

// Client is a DetectorClient over a REST inference endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// detectRequest is the wire request to the inference server.
type detectRequest struct {
	Image               string  `json:"image"` // base64
	Model               string  `json:"model,omitempty"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
	IoUThreshold        float64 `json:"iou_threshold"`
}

// detectResponse mirrors the server's detection list.
type detectResponse struct {
	Detections []wireDetection `json:"detections"`
	Error      string          `json:"error,omitempty"`
}

type wireDetection struct {
	BBox       [4]float64 `json:"bbox"`
	Confidence float64    `json:"confidence"`
	ClassID    int        `json:"class_id"`
	ClassName  string     `json:"class_name"`
}

// NewClient creates a Client for the given server URL.
func NewClient(serverURL string) (*Client, error) {
	if serverURL == "" {
		serverURL = "http://localhost:8000"
	}
	return &Client{
		baseURL: strings.TrimSuffix(serverURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}, nil
}

// Detect posts the image to the inference server and decodes the detection
// list. The server applies the confidence threshold and non-max suppression
// itself; results are passed through unmodified.
func (c *Client) Detect(ctx context.Context, imgB64 string, opts client.DetectOptions) ([]types.Detection, error) {
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultTimeout)
		defer cancel()
	}

	reqBody := detectRequest{
		Image:               imgB64,
		Model:               opts.Model,
		ConfidenceThreshold: opts.ConfidenceThreshold,
		IoUThreshold:        opts.IoUThreshold,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal detect request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/detect", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create detect request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detect request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read detect response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detect server returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var decoded detectResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return nil, fmt.Errorf("decode detect response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("detect server error: %s", decoded.Error)
	}

	detections := make([]types.Detection, 0, len(decoded.Detections))
	for _, d := range decoded.Detections {
		detections = append(detections, types.Detection{
			BBox: [4]int{
				int(d.BBox[0]), int(d.BBox[1]),
				int(d.BBox[2]), int(d.BBox[3]),
			},
			Confidence: d.Confidence,
			ClassID:    d.ClassID,
			ClassName:  d.ClassName,
		})
	}
	return detections, nil
}
