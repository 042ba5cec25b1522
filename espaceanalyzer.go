// Package espaceanalyzer measures primary-molar/premolar width differences
// on dental panoramic radiographs.
//
// The pipeline locates candidate tooth regions with an external object
// detector, resolves each region to an anatomical category using positional
// priors over the dental arch, pairs every accepted primary second molar
// with its succeeding second premolar, converts pixel geometry into
// calibrated mesiodistal widths, and classifies the width difference into a
// clinical-significance band with fixed recommendation text.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//		"os"
//
//		espaceanalyzer "github.com/dentalvision/espace-analyzer"
//		"github.com/dentalvision/espace-analyzer/pkg/analyzer"
//	)
//
//	func main() {
//		pipeline, err := espaceanalyzer.NewAnalyzer("rest", "http://localhost:8000", analyzer.DefaultConfig())
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		raw, err := os.ReadFile("panoramic.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		report, err := pipeline.Analyze(context.Background(), raw)
//		if err != nil {
//			log.Fatal(err)
//		}
//
//		for _, pair := range report.Pairs {
//			fmt.Printf("molar %.2fmm, premolar %.2fmm, delta %.2fmm (%s)\n",
//				pair.PrimaryMolar.WidthMM, pair.Premolar.WidthMM,
//				pair.WidthDifference.ValueMM, pair.WidthDifference.ClinicalSignificance)
//		}
//	}
//
// The package consists of these main components:
//
//  1. Preprocess (pkg/preprocess): radiograph normalization for the detector
//  2. Detector backends (pkg/restdetect, pkg/ollamadetect): the external collaborator
//  3. Anatomy (pkg/anatomy): positional classification of detections
//  4. Pairing (pkg/pairing): greedy nearest-centroid molar/premolar matching
//  5. Measure (pkg/measure): calibrated width measurement, bounding-box or principal-axis
//  6. Clinical (pkg/clinical): width-difference bands and recommendations
//  7. Analyzer (pkg/analyzer): pipeline assembly plus a deterministic mock
//  8. Batch (pkg/batch): bounded-parallel multi-image analysis
package espaceanalyzer

import (
	"context"
	"fmt"
	"os"

	"github.com/dentalvision/espace-analyzer/pkg/analyzer"
	"github.com/dentalvision/espace-analyzer/pkg/batch"
	"github.com/dentalvision/espace-analyzer/pkg/ollamadetect"
	"github.com/dentalvision/espace-analyzer/pkg/restdetect"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// Version of the analyzer library.
const Version = "1.0.0"

// NewAnalyzer builds a ToothAnalyzer for the named detector backend:
// "rest" (YOLO-style inference service), "ollama" (vision model via the
// Ollama API), or "mock" (deterministic test double, no backend needed).
func NewAnalyzer(backend, serverURL string, cfg analyzer.Config) (analyzer.ToothAnalyzer, error) {
	switch backend {
	case "rest":
		detector, err := restdetect.NewClient(serverURL)
		if err != nil {
			return nil, fmt.Errorf("create rest detector client: %w", err)
		}
		return analyzer.NewDetectorBacked(detector, cfg)
	case "ollama":
		if serverURL == "" {
			serverURL = "http://localhost:11434"
		}
		detector, err := ollamadetect.NewClient(serverURL)
		if err != nil {
			return nil, fmt.Errorf("create ollama detector client: %w", err)
		}
		return analyzer.NewDetectorBacked(detector, cfg)
	case "mock":
		return analyzer.NewMock(), nil
	default:
		return nil, fmt.Errorf("unknown detector backend: %q (use rest, ollama or mock)", backend)
	}
}

// AnalyzeFile is a convenience wrapper that reads and analyzes one image.
func AnalyzeFile(ctx context.Context, a analyzer.ToothAnalyzer, path string) (*types.AnalysisReport, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return a.Analyze(ctx, raw)
}

// AnalyzeFiles runs a bounded-parallel batch over image paths, preserving
// input order in the report.
func AnalyzeFiles(ctx context.Context, a analyzer.ToothAnalyzer, paths []string, workers int) types.BatchReport {
	items := make([]batch.Item, 0, len(paths))
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			// nil data makes the runner record the item as failed
			data = nil
		}
		items = append(items, batch.Item{Filename: path, Data: data})
	}
	return batch.New(a, workers).Run(ctx, items)
}

// GetVersion returns the library version.
func GetVersion() string {
	return Version
}
