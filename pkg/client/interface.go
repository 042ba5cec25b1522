package client

import (
	"context"

	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// DetectOptions are the operating knobs passed through to the detector backend.
type DetectOptions struct {
	Model               string
	ConfidenceThreshold float64
	IoUThreshold        float64
}

// DetectorClient is the external tooth-detector contract. Implementations
// receive a base64-encoded preprocessed image and return candidate tooth
// regions; non-max suppression happens inside the backend, not here.
type DetectorClient interface {
	Detect(ctx context.Context, imgB64 string, opts DetectOptions) ([]types.Detection, error)
}
