package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	espaceanalyzer "github.com/dentalvision/espace-analyzer"
	"github.com/dentalvision/espace-analyzer/internal/config"
	"github.com/dentalvision/espace-analyzer/internal/utils"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

func main() {
	var in, dir, out, cfgPath string
	var backend, serverURL, model string
	var confidence, calibration, magnification float64
	var workers int
	var noClamp, pretty, showVersion bool
	var timeout time.Duration

	flag.StringVar(&in, "in", "", "input radiograph path (jpg/png/webp)")
	flag.StringVar(&dir, "dir", "", "directory of radiographs to analyze as a batch")
	flag.StringVar(&out, "out", "", "write the JSON report to a file instead of stdout")
	flag.StringVar(&cfgPath, "config", "", "config file path (default: espace.yaml in cwd, if present)")

	flag.StringVar(&backend, "backend", "", "detector backend: rest, ollama or mock")
	flag.StringVar(&serverURL, "url", "", "detector server URL")
	flag.StringVar(&model, "model", "", "detector model name")

	flag.Float64Var(&confidence, "confidence", 0, "detection confidence threshold (0..1)")
	flag.Float64Var(&calibration, "mmpp", 0, "calibration in millimeters per pixel")
	flag.Float64Var(&magnification, "mag", 0, "panoramic magnification factor")
	flag.BoolVar(&noClamp, "noclamp", false, "disable the premolar size constraint")

	flag.IntVar(&workers, "workers", 0, "parallel workers for -dir batches")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "overall analysis timeout")
	flag.BoolVar(&pretty, "pretty", true, "indent the JSON output")
	flag.BoolVar(&showVersion, "version", false, "print version and exit")
	flag.Parse()

	if showVersion {
		fmt.Printf("espace-analyzer %s\n", espaceanalyzer.Version)
		return
	}
	if (in == "") == (dir == "") {
		log.Fatalf("usage: %s -in radiograph.jpg | -dir radiographs/ [-backend rest|ollama|mock] [-url server_url] [-mmpp 0.12]", filepath.Base(os.Args[0]))
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Flags override the config file
	if backend != "" {
		cfg.Detector.Backend = backend
	}
	if serverURL != "" {
		cfg.Detector.ServerURL = serverURL
	}
	if model != "" {
		cfg.Detector.Model = model
	}
	if confidence > 0 {
		cfg.Detector.ConfidenceThreshold = confidence
	}
	if calibration > 0 {
		cfg.Measure.MMPerPixel = calibration
	}
	if magnification > 0 {
		cfg.Measure.MagnificationFactor = magnification
	}
	if noClamp {
		cfg.Measure.EnforceSizeConstraint = false
	}
	if workers > 0 {
		cfg.Batch.Workers = workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	pipeline, err := espaceanalyzer.NewAnalyzer(cfg.Detector.Backend, cfg.Detector.ServerURL, cfg.Pipeline())
	if err != nil {
		log.Fatalf("Failed to create analyzer: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var report any
	if in != "" {
		single, err := espaceanalyzer.AnalyzeFile(ctx, pipeline, in)
		if err != nil {
			log.Fatalf("Analysis failed: %v", err)
		}
		logReport(in, single)
		report = single
	} else {
		paths, err := utils.ListRadiographFiles(dir)
		if err != nil {
			log.Fatalf("Failed to list radiographs: %v", err)
		}
		if len(paths) == 0 {
			log.Fatalf("No radiograph files found in %s", dir)
		}
		batchReport := espaceanalyzer.AnalyzeFiles(ctx, pipeline, paths, cfg.Batch.Workers)
		log.Printf("batch: %d files, %d processed, %d failed",
			batchReport.Summary.TotalFiles, batchReport.Summary.ProcessedFiles, batchReport.Summary.FailedFiles)
		report = batchReport
	}

	var js []byte
	if pretty {
		js, err = json.MarshalIndent(report, "", "  ")
	} else {
		js, err = json.Marshal(report)
	}
	if err != nil {
		log.Fatalf("Failed to encode report: %v", err)
	}

	if out != "" {
		if err := os.WriteFile(out, append(js, '\n'), 0o644); err != nil {
			log.Fatalf("Failed to write report: %v", err)
		}
		log.Printf("wrote %s", out)
		return
	}
	fmt.Println(string(js))
}

func logReport(path string, report *types.AnalysisReport) {
	log.Printf("%s: %d pair(s), %dms", path, report.TotalPairsDetected, report.ProcessingTimeMS)
	for _, pair := range report.Pairs {
		log.Printf("  %s %.2fmm / %s %.2fmm -> %.2fmm (%.1f%%) %s",
			pair.PrimaryMolar.ClassName, pair.PrimaryMolar.WidthMM,
			pair.Premolar.ClassName, pair.Premolar.WidthMM,
			pair.WidthDifference.ValueMM, pair.WidthDifference.Percentage,
			pair.WidthDifference.ClinicalSignificance)
	}
}
