// Package analyzer runs the full radiograph analysis pipeline and assembles
// the response contract. Two strategies implement the same interface: the
// detector-backed pipeline and a deterministic mock for development and
// testing without an inference backend.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"time"

	"github.com/dentalvision/espace-analyzer/pkg/anatomy"
	"github.com/dentalvision/espace-analyzer/pkg/client"
	"github.com/dentalvision/espace-analyzer/pkg/clinical"
	"github.com/dentalvision/espace-analyzer/pkg/measure"
	"github.com/dentalvision/espace-analyzer/pkg/pairing"
	"github.com/dentalvision/espace-analyzer/pkg/preprocess"
	"github.com/dentalvision/espace-analyzer/pkg/quality"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// ErrDetectorUnavailable reports an unreachable or erroring detector
// backend. This is an infrastructure failure, not a data failure; callers
// may retry.
var ErrDetectorUnavailable = errors.New("analyzer: detector backend unavailable")

// ToothAnalyzer is the strategy interface shared by the real pipeline and
// the mock. Analyze is a pure function of its inputs: fixed image bytes,
// detector output, and configuration always yield an identical report.
type ToothAnalyzer interface {
	Analyze(ctx context.Context, raw []byte) (*types.AnalysisReport, error)
}

// Config aggregates the per-component configuration of one pipeline.
type Config struct {
	Detect     client.DetectOptions
	Preprocess preprocess.Config
	Anatomy    anatomy.Config
	Pairing    pairing.Config
	Measure    measure.Config
	Clinical   clinical.Config
}

// DefaultConfig returns panoramic radiograph defaults throughout.
func DefaultConfig() Config {
	return Config{
		Detect: client.DetectOptions{
			ConfidenceThreshold: 0.25,
			IoUThreshold:        0.45,
		},
		Preprocess: preprocess.DefaultConfig(),
		Anatomy:    anatomy.DefaultConfig(),
		Pairing:    pairing.DefaultConfig(),
		Measure:    measure.DefaultConfig(),
		Clinical:   clinical.DefaultConfig(),
	}
}

// DetectorBackedAnalyzer is the production pipeline:
// preprocess -> detect -> classify -> pair -> measure -> clinical -> assemble.
type DetectorBackedAnalyzer struct {
	detector   client.DetectorClient
	detectOpts client.DetectOptions

	pre        *preprocess.Preprocessor
	classifier *anatomy.Classifier
	pairer     *pairing.Engine
	measurer   *measure.Engine
	clin       *clinical.Analyzer
}

// NewDetectorBacked wires the pipeline around a detector client. The
// calibration configuration is validated here, before any image is touched.
func NewDetectorBacked(detector client.DetectorClient, cfg Config) (*DetectorBackedAnalyzer, error) {
	measurer, err := measure.NewWithConfig(cfg.Measure)
	if err != nil {
		return nil, err
	}
	return &DetectorBackedAnalyzer{
		detector:   detector,
		detectOpts: cfg.Detect,
		pre:        preprocess.NewWithConfig(cfg.Preprocess),
		classifier: anatomy.NewWithConfig(cfg.Anatomy),
		pairer:     pairing.NewWithConfig(cfg.Pairing),
		measurer:   measurer,
		clin:       clinical.NewWithConfig(cfg.Clinical),
	}, nil
}

// Analyze runs the full pipeline on raw image bytes. Absence of usable
// detections or pairs is a successful empty report, never an error; only
// decode failures and detector failures abort the image.
func (a *DetectorBackedAnalyzer) Analyze(ctx context.Context, raw []byte) (*types.AnalysisReport, error) {
	start := time.Now()

	img, err := a.pre.Process(raw)
	if err != nil {
		return nil, err
	}
	gray := preprocess.Luminance(img)
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	imgB64, err := encodeForDetector(img)
	if err != nil {
		return nil, fmt.Errorf("encode for detector: %w", err)
	}

	detections, err := a.detector.Detect(ctx, imgB64, a.detectOpts)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}

	cls := a.classifier.Classify(detections, w, h)
	a.classifier.ApplyPositionalBonus(cls.Molars)
	a.classifier.ApplyPositionalBonus(cls.Premolars)

	pairs := a.pairer.Match(cls, w)

	report := &types.AnalysisReport{
		Pairs:        make([]types.PairResult, 0, len(pairs)),
		ImageQuality: quality.Assess(gray),
	}

	worstRank := -1
	var worstRecs []string
	for _, pair := range pairs {
		molarM := a.measurer.Measure(pair.PrimaryMolar, gray)
		premolarM := a.measurer.Measure(pair.Premolar, gray)
		clamped := a.measurer.ClampPair(&molarM, &premolarM)

		diff := a.clin.Analyze(molarM, premolarM)

		result := types.PairResult{
			PrimaryMolar:               toothResult(pair.PrimaryMolar, molarM),
			Premolar:                   toothResult(pair.Premolar, premolarM),
			WidthDifference:            diff,
			PremolarClamped:            clamped,
			RequiresManualVerification: clamped || !a.measurer.Plausible(molarM, premolarM),
		}
		report.Pairs = append(report.Pairs, result)

		if rank := a.clin.SeverityRank(diff.ClinicalSignificance); worstRank == -1 || rank < worstRank {
			worstRank = rank
			worstRecs = a.clin.Recommend(diff)
		}
	}

	report.TotalPairsDetected = len(report.Pairs)
	if report.TotalPairsDetected == 0 {
		report.ClinicalRecommendations = []string{clinical.InsufficientDetectionsRecommendation}
	} else {
		report.ClinicalRecommendations = worstRecs
	}
	report.ProcessingTimeMS = time.Since(start).Milliseconds()
	return report, nil
}

func toothResult(tooth anatomy.ClassifiedTooth, m types.Measurement) types.ToothResult {
	return types.ToothResult{
		ClassName:  tooth.Detection.ClassName,
		WidthMM:    round2(m.WidthMM),
		Confidence: round2(tooth.AdjustedConfidence),
		BBox:       tooth.Detection.BBox,
	}
}

// encodeForDetector serializes the preprocessed image the way inference
// backends expect it: base64 JPEG.
func encodeForDetector(img *image.NRGBA) (string, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
