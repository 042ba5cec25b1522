// Package server exposes the analysis pipeline as a small JSON-over-HTTP
// service: a health probe, single-image analysis, and batch analysis.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/dentalvision/espace-analyzer/internal/config"
	"github.com/dentalvision/espace-analyzer/pkg/analyzer"
	"github.com/dentalvision/espace-analyzer/pkg/batch"
)

// AnalyzerFactory builds a pipeline for a (possibly per-request adjusted)
// configuration. The factory captures the detector backend so the server
// does not need to know which backend is in use.
type AnalyzerFactory func(cfg analyzer.Config) (analyzer.ToothAnalyzer, error)

// Server routes analysis requests to the pipeline.
type Server struct {
	cfg     *config.Config
	factory AnalyzerFactory
	base    analyzer.ToothAnalyzer
}

// New creates a Server. The base analyzer is built once from the loaded
// configuration; requests carrying overrides get a fresh pipeline.
func New(cfg *config.Config, factory AnalyzerFactory) (*Server, error) {
	base, err := factory(cfg.Pipeline())
	if err != nil {
		return nil, fmt.Errorf("build analyzer: %w", err)
	}
	return &Server{cfg: cfg, factory: factory, base: base}, nil
}

// Handler returns the HTTP route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /analyze", s.handleAnalyze)
	mux.HandleFunc("POST /analyze/batch", s.handleAnalyzeBatch)
	return mux
}

// ListenAndServe blocks serving HTTP until the context is canceled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	timeout := time.Duration(s.cfg.Server.RequestTimeoutS) * time.Second
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Handler(),
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("listening on %s", s.cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// analyzerFor returns the base pipeline, or a fresh one when the request
// carries configuration overrides.
func (s *Server) analyzerFor(ov overrides) (analyzer.ToothAnalyzer, error) {
	if ov.empty() {
		return s.base, nil
	}
	cfg := s.cfg.Pipeline()
	if ov.ConfidenceThreshold != nil {
		cfg.Detect.ConfidenceThreshold = *ov.ConfidenceThreshold
	}
	if ov.CalibrationMMPerPixel != nil {
		cfg.Measure.MMPerPixel = *ov.CalibrationMMPerPixel
	}
	if ov.MagnificationFactor != nil {
		cfg.Measure.MagnificationFactor = *ov.MagnificationFactor
	}
	return s.factory(cfg)
}

// batchRunnerFor builds a batch runner over the given analyzer.
func (s *Server) batchRunnerFor(a analyzer.ToothAnalyzer) *batch.Runner {
	return batch.New(a, s.cfg.Batch.Workers)
}
