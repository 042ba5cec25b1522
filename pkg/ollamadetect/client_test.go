package ollamadetect

import (
	"testing"
)

const cleanResponse = `{"detections": [
	{"bbox": [810, 440, 910, 560], "confidence": 0.91, "class_id": 3, "class_name": "primary_second_molar_lower_right"},
	{"bbox": [690, 445, 760, 555], "confidence": 0.82, "class_id": 5, "class_name": "second_premolar_lower_right"}
]}`

func TestParseDetections(t *testing.T) {
	detections, err := parseDetections(cleanResponse)
	if err != nil {
		t.Fatalf("parseDetections failed: %v", err)
	}
	if len(detections) != 2 {
		t.Fatalf("Expected 2 detections, got %d", len(detections))
	}
	if detections[0].BBox != [4]int{810, 440, 910, 560} {
		t.Errorf("Unexpected bbox: %v", detections[0].BBox)
	}
	if detections[0].ClassName != "primary_second_molar_lower_right" {
		t.Errorf("Unexpected class name: %s", detections[0].ClassName)
	}
	if detections[1].Confidence != 0.82 {
		t.Errorf("Unexpected confidence: %v", detections[1].Confidence)
	}
}

func TestParseDetectionsWithCodeFence(t *testing.T) {
	fenced := "```json\n" + cleanResponse + "\n```"
	detections, err := parseDetections(fenced)
	if err != nil {
		t.Fatalf("parseDetections failed: %v", err)
	}
	if len(detections) != 2 {
		t.Errorf("Fenced JSON should parse, got %d detections", len(detections))
	}
}

func TestParseDetectionsWithChatter(t *testing.T) {
	chatty := "Sure! Here are the teeth I found:\n" + cleanResponse + "\nLet me know if you need anything else."
	detections, err := parseDetections(chatty)
	if err != nil {
		t.Fatalf("parseDetections failed: %v", err)
	}
	if len(detections) != 2 {
		t.Errorf("Surrounding chatter should be stripped, got %d detections", len(detections))
	}
}

func TestParseDetectionsTrailingCommasAndComments(t *testing.T) {
	messy := `{
	// detected teeth
	"detections": [
		{"bbox": [810, 440, 910, 560], "confidence": 0.91, "class_id": 3, "class_name": "primary_second_molar_lower_right"},
	],
}`
	detections, err := parseDetections(messy)
	if err != nil {
		t.Fatalf("parseDetections failed: %v", err)
	}
	if len(detections) != 1 {
		t.Errorf("Comments and trailing commas should be tolerated, got %d detections", len(detections))
	}
}

func TestParseDetectionsEmptyList(t *testing.T) {
	detections, err := parseDetections(`{"detections": []}`)
	if err != nil {
		t.Fatalf("parseDetections failed: %v", err)
	}
	if len(detections) != 0 {
		t.Errorf("Expected empty list, got %d", len(detections))
	}
}

func TestParseDetectionsNonJSON(t *testing.T) {
	detections, err := parseDetections("I cannot see any teeth in this image.")
	if err != nil {
		t.Fatalf("Non-JSON response must not be an error: %v", err)
	}
	if detections != nil {
		t.Errorf("Expected nil detections for prose, got %v", detections)
	}
}

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		expected string
	}{
		{"plain object untouched", `{"a": 1}`, `{"a": 1}`},
		{"fence removed", "```json\n{\"a\": 1}\n```", `{"a": 1}`},
		{"trailing comma removed", `{"a": [1, 2,]}`, `{"a": [1, 2]}`},
		{"block comment removed", "{\"a\": 1 /* note */}", `{"a": 1 }`},
		{"prose clipped to braces", "prefix {\"a\": 1} suffix", `{"a": 1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := sanitizeModelJSON(tt.in); got != tt.expected {
				t.Errorf("sanitizeModelJSON(%q) = %q, want %q", tt.in, got, tt.expected)
			}
		})
	}
}

func TestNewClient(t *testing.T) {
	c, err := NewClient("http://localhost:11434")
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if c == nil || c.client == nil {
		t.Error("NewClient returned an unwired client")
	}
}
