package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	espaceanalyzer "github.com/dentalvision/espace-analyzer"
	"github.com/dentalvision/espace-analyzer/internal/config"
	"github.com/dentalvision/espace-analyzer/internal/server"
	"github.com/dentalvision/espace-analyzer/pkg/analyzer"
)

func main() {
	var cfgPath, addr, backend, serverURL string

	flag.StringVar(&cfgPath, "config", "", "config file path (default: espace.yaml in cwd, if present)")
	flag.StringVar(&addr, "addr", "", "listen address (overrides config)")
	flag.StringVar(&backend, "backend", "", "detector backend: rest, ollama or mock (overrides config)")
	flag.StringVar(&serverURL, "url", "", "detector server URL (overrides config)")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if backend != "" {
		cfg.Detector.Backend = backend
	}
	if serverURL != "" {
		cfg.Detector.ServerURL = serverURL
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	factory := func(pipeline analyzer.Config) (analyzer.ToothAnalyzer, error) {
		return espaceanalyzer.NewAnalyzer(cfg.Detector.Backend, cfg.Detector.ServerURL, pipeline)
	}

	srv, err := server.New(cfg, factory)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Printf("espace-server %s listening on %s (backend=%s)",
		espaceanalyzer.Version, cfg.Server.Addr, cfg.Detector.Backend)
	if err := srv.ListenAndServe(ctx); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
