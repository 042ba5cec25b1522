package restdetect

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dentalvision/espace-analyzer/pkg/client"
)

func TestDetect(t *testing.T) {
	var gotPath string
	var gotReq detectRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("Bad request body: %v", err)
		}
		json.NewEncoder(w).Encode(detectResponse{
			Detections: []wireDetection{
				{BBox: [4]float64{810.4, 440.9, 910.2, 560.1}, Confidence: 0.91, ClassID: 3, ClassName: "primary_second_molar"},
				{BBox: [4]float64{690, 445, 760, 555}, Confidence: 0.82, ClassID: 5, ClassName: "second_premolar"},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	opts := client.DetectOptions{Model: "teeth-v2", ConfidenceThreshold: 0.25, IoUThreshold: 0.45}
	detections, err := c.Detect(context.Background(), "aW1hZ2U=", opts)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if gotPath != "/detect" {
		t.Errorf("Expected POST /detect, got %s", gotPath)
	}
	if gotReq.Image != "aW1hZ2U=" {
		t.Errorf("Image payload not forwarded, got %q", gotReq.Image)
	}
	if gotReq.Model != "teeth-v2" || gotReq.ConfidenceThreshold != 0.25 || gotReq.IoUThreshold != 0.45 {
		t.Errorf("Options not forwarded: %+v", gotReq)
	}

	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(detections))
	}
	first := detections[0]
	if first.BBox != [4]int{810, 440, 910, 560} {
		t.Errorf("Float coordinates should truncate to pixels, got %v", first.BBox)
	}
	if first.ClassName != "primary_second_molar" || first.ClassID != 3 {
		t.Errorf("Class fields lost: %+v", first)
	}
}

func TestDetectEmptyResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detectResponse{})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	detections, err := c.Detect(context.Background(), "aW1hZ2U=", client.DetectOptions{})
	if err != nil {
		t.Fatalf("Empty result must not be an error: %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("Expected no detections, got %d", len(detections))
	}
}

func TestDetectServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not loaded", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.Detect(context.Background(), "aW1hZ2U=", client.DetectOptions{})
	if err == nil {
		t.Fatal("Expected an error for HTTP 500")
	}
	if !strings.Contains(err.Error(), "500") {
		t.Errorf("Error should mention the status code, got %v", err)
	}
}

func TestDetectApplicationError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detectResponse{Error: "unsupported image encoding"})
	}))
	defer srv.Close()

	c, _ := NewClient(srv.URL)
	_, err := c.Detect(context.Background(), "aW1hZ2U=", client.DetectOptions{})
	if err == nil || !strings.Contains(err.Error(), "unsupported image encoding") {
		t.Errorf("Expected the server's error message, got %v", err)
	}
}

func TestDetectUnreachableServer(t *testing.T) {
	c, err := NewClient("http://127.0.0.1:1")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Detect(ctx, "aW1hZ2U=", client.DetectOptions{}); err == nil {
		t.Error("Expected a transport error")
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	c, err := NewClient("")
	if err != nil {
		t.Fatal(err)
	}
	if c.baseURL != "http://localhost:8000" {
		t.Errorf("Unexpected default URL: %s", c.baseURL)
	}

	c, _ = NewClient("http://example.com/api/")
	if c.baseURL != "http://example.com/api" {
		t.Errorf("Trailing slash should be trimmed, got %s", c.baseURL)
	}
}
