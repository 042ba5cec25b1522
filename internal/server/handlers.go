package server

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/dentalvision/espace-analyzer/pkg/analyzer"
	"github.com/dentalvision/espace-analyzer/pkg/batch"
	"github.com/dentalvision/espace-analyzer/pkg/measure"
	"github.com/dentalvision/espace-analyzer/pkg/preprocess"
)

// overrides are the optional per-request configuration knobs.
type overrides struct {
	ConfidenceThreshold   *float64 `json:"confidence_threshold,omitempty"`
	CalibrationMMPerPixel *float64 `json:"calibration_mm_per_pixel,omitempty"`
	MagnificationFactor   *float64 `json:"magnification_factor,omitempty"`
}

func (o overrides) empty() bool {
	return o.ConfidenceThreshold == nil && o.CalibrationMMPerPixel == nil && o.MagnificationFactor == nil
}

// analyzeRequest is the JSON body of POST /analyze. Raw image bodies with
// an image/* content type are accepted too.
type analyzeRequest struct {
	ImageB64 string `json:"image_b64"`
	overrides
}

// batchRequest is the JSON body of POST /analyze/batch.
type batchRequest struct {
	Images []batchImage `json:"images"`
	overrides
}

type batchImage struct {
	Filename string `json:"filename"`
	DataB64  string `json:"data_b64"`
}

type errorResponse struct {
	Error string `json:"error"`
	Retry bool   `json:"retry,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"backend": s.cfg.Detector.Backend,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxImageBytes)
	defer body.Close()

	var raw []byte
	var ov overrides

	if strings.HasPrefix(r.Header.Get("Content-Type"), "image/") {
		data, err := io.ReadAll(body)
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to read image body", false)
			return
		}
		raw = data
	} else {
		var req analyzeRequest
		if err := json.NewDecoder(body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body", false)
			return
		}
		data, err := base64.StdEncoding.DecodeString(req.ImageB64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "image_b64 is not valid base64", false)
			return
		}
		raw = data
		ov = req.overrides
	}

	a, err := s.analyzerFor(ov)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}

	report, err := a.Analyze(r.Context(), raw)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	body := http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxImageBytes)
	defer body.Close()

	var req batchRequest
	if err := json.NewDecoder(body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body", false)
		return
	}
	if len(req.Images) == 0 {
		writeError(w, http.StatusBadRequest, "images list is empty", false)
		return
	}

	a, err := s.analyzerFor(req.overrides)
	if err != nil {
		writeAnalysisError(w, err)
		return
	}

	items := make([]batch.Item, 0, len(req.Images))
	for _, img := range req.Images {
		data, err := base64.StdEncoding.DecodeString(img.DataB64)
		if err != nil {
			// Undecodable base64 degrades to unparseable image bytes so the
			// item is marked failed instead of rejecting the whole batch
			data = nil
		}
		items = append(items, batch.Item{Filename: img.Filename, Data: data})
	}

	report := s.batchRunnerFor(a).Run(r.Context(), items)
	writeJSON(w, http.StatusOK, report)
}

// writeAnalysisError maps the pipeline error taxonomy onto HTTP statuses.
// Decode and calibration problems are the caller's fault; an unavailable
// detector is infrastructure and carries retry guidance.
func writeAnalysisError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, preprocess.ErrImageDecode):
		writeError(w, http.StatusUnprocessableEntity, err.Error(), false)
	case errors.Is(err, measure.ErrCalibrationMisconfigured):
		writeError(w, http.StatusBadRequest, err.Error(), false)
	case errors.Is(err, analyzer.ErrDetectorUnavailable):
		writeError(w, http.StatusBadGateway, err.Error(), true)
	default:
		writeError(w, http.StatusInternalServerError, err.Error(), false)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("write response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string, retry bool) {
	writeJSON(w, status, errorResponse{Error: msg, Retry: retry})
}
