package types

import (
	"encoding/json"
	"math"
	"strings"
	"testing"
)

func TestDetectionGeometry(t *testing.T) {
	d := Detection{BBox: [4]int{100, 200, 160, 300}}

	if d.Width() != 60 {
		t.Errorf("Expected width 60, got %d", d.Width())
	}
	if d.Height() != 100 {
		t.Errorf("Expected height 100, got %d", d.Height())
	}
	if d.Area() != 6000 {
		t.Errorf("Expected area 6000, got %d", d.Area())
	}

	cx, cy := d.Centroid()
	if cx != 130 || cy != 250 {
		t.Errorf("Expected centroid (130, 250), got (%v, %v)", cx, cy)
	}
}

func TestCentroidDistance(t *testing.T) {
	a := Detection{BBox: [4]int{0, 0, 20, 20}}   // centroid (10, 10)
	b := Detection{BBox: [4]int{30, 40, 50, 60}} // centroid (40, 50)

	d := a.CentroidDistance(b)
	if math.Abs(d-50) > 1e-9 {
		t.Errorf("Expected distance 50, got %v", d)
	}
	if a.CentroidDistance(a) != 0 {
		t.Error("Distance to self should be 0")
	}
}

func TestToothResultJSONContract(t *testing.T) {
	raw, err := json.Marshal(ToothResult{ClassName: "second_premolar", WidthMM: 8.14})
	if err != nil {
		t.Fatal(err)
	}
	s := string(raw)
	if !strings.Contains(s, `"class_label":"second_premolar"`) {
		t.Errorf("Tooth class must serialize as class_label: %s", s)
	}
	if !strings.Contains(s, `"width_mm":8.14`) {
		t.Errorf("Width field name wrong: %s", s)
	}
}

func TestBatchItemErrorOmitted(t *testing.T) {
	raw, err := json.Marshal(BatchItemResult{Filename: "a.jpg", Status: StatusSuccess})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(raw), `"error"`) {
		t.Errorf("Empty error should be omitted: %s", raw)
	}
}
