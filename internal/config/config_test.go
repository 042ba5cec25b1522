package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "espace.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Detector.Backend != "rest" {
		t.Errorf("Expected rest backend, got %s", cfg.Detector.Backend)
	}
	if cfg.Measure.MMPerPixel != 0.12 {
		t.Errorf("Expected 0.12 mm/px, got %v", cfg.Measure.MMPerPixel)
	}
	if cfg.Measure.MagnificationFactor != 1.25 {
		t.Errorf("Expected magnification 1.25, got %v", cfg.Measure.MagnificationFactor)
	}
	if cfg.Batch.Workers != 4 {
		t.Errorf("Expected 4 workers, got %d", cfg.Batch.Workers)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Defaults must validate: %v", err)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfigFile(t, `
detector:
  backend: mock
  confidence_threshold: 0.4
measure:
  mm_per_pixel: 0.1
batch:
  workers: 2
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Detector.Backend != "mock" {
		t.Errorf("Expected mock backend, got %s", cfg.Detector.Backend)
	}
	if cfg.Detector.ConfidenceThreshold != 0.4 {
		t.Errorf("Expected threshold 0.4, got %v", cfg.Detector.ConfidenceThreshold)
	}
	if cfg.Measure.MMPerPixel != 0.1 {
		t.Errorf("Expected 0.1 mm/px, got %v", cfg.Measure.MMPerPixel)
	}
	// Untouched settings keep their defaults
	if cfg.Measure.MagnificationFactor != 1.25 {
		t.Errorf("Default magnification lost, got %v", cfg.Measure.MagnificationFactor)
	}
	if cfg.Batch.Workers != 2 {
		t.Errorf("Expected 2 workers, got %d", cfg.Batch.Workers)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("An explicitly named missing file must fail")
	}
}

func TestLoadInvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		errPart string
	}{
		{"bad backend", "detector:\n  backend: grpc\n", "backend"},
		{"bad threshold", "detector:\n  confidence_threshold: 1.5\n", "confidence_threshold"},
		{"zero calibration", "measure:\n  mm_per_pixel: 0\n", "mm_per_pixel"},
		{"zero workers", "batch:\n  workers: 0\n", "workers"},
		{"empty posterior band", "anatomy:\n  posterior_start: 0.9\n  posterior_end: 0.5\n", "posterior"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfigFile(t, tt.yaml)
			_, err := Load(path)
			if err == nil {
				t.Fatal("Expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.errPart) {
				t.Errorf("Error %q should mention %q", err, tt.errPart)
			}
		})
	}
}

func TestPipeline(t *testing.T) {
	cfg := Default()
	cfg.Detector.Model = "teeth-v2"
	cfg.Detector.ConfidenceThreshold = 0.3
	cfg.Measure.MMPerPixel = 0.11

	p := cfg.Pipeline()

	if p.Detect.Model != "teeth-v2" {
		t.Errorf("Model not forwarded: %s", p.Detect.Model)
	}
	if p.Detect.ConfidenceThreshold != 0.3 {
		t.Errorf("Threshold not forwarded: %v", p.Detect.ConfidenceThreshold)
	}
	if p.Measure.MMPerPixel != 0.11 {
		t.Errorf("Calibration not forwarded: %v", p.Measure.MMPerPixel)
	}
	if p.Preprocess.TileGridSize != 8 {
		t.Errorf("Preprocess defaults not forwarded: %v", p.Preprocess)
	}
}
