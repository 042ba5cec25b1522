package measure

import (
	"errors"
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/dentalvision/espace-analyzer/pkg/anatomy"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// createTestGray builds a dark gray plane with a bright blobW x blobH
// rectangle centered on (cx, cy).
func createTestGray(width, height, cx, cy, blobW, blobH int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetGray(x, y, color.Gray{Y: 20})
		}
	}
	for y := cy - blobH/2; y < cy+blobH/2; y++ {
		for x := cx - blobW/2; x < cx+blobW/2; x++ {
			img.SetGray(x, y, color.Gray{Y: 230})
		}
	}
	return img
}

func toothWithBox(bbox [4]int) anatomy.ClassifiedTooth {
	return anatomy.ClassifiedTooth{
		Detection: types.Detection{BBox: bbox, Confidence: 0.9},
		Category:  anatomy.CategoryPrimaryMolar,
	}
}

func TestNewWithConfigValidatesCalibration(t *testing.T) {
	_, err := NewWithConfig(Config{MMPerPixel: 0, MagnificationFactor: 1.25})
	if !errors.Is(err, ErrCalibrationMisconfigured) {
		t.Errorf("Zero mm-per-pixel should fail with ErrCalibrationMisconfigured, got %v", err)
	}

	_, err = NewWithConfig(Config{MMPerPixel: 0.12, MagnificationFactor: -1})
	if !errors.Is(err, ErrCalibrationMisconfigured) {
		t.Errorf("Negative magnification should fail with ErrCalibrationMisconfigured, got %v", err)
	}

	e, err := NewWithConfig(Config{MMPerPixel: 0.12, MagnificationFactor: 1.25, ClampRatio: 0.85})
	if err != nil {
		t.Fatalf("Valid calibration rejected: %v", err)
	}
	if e == nil {
		t.Fatal("NewWithConfig returned nil engine")
	}
}

func TestNewWithConfigRepairsClampRatio(t *testing.T) {
	e, err := NewWithConfig(Config{MMPerPixel: 0.12, MagnificationFactor: 1.25, ClampRatio: 1.5})
	if err != nil {
		t.Fatal(err)
	}
	if e.Config().ClampRatio != 0.85 {
		t.Errorf("Out-of-range clamp ratio should reset to 0.85, got %v", e.Config().ClampRatio)
	}
}

func TestMeasureBoundingBox(t *testing.T) {
	e := New()

	// 60 wide, 80 tall: the shorter dimension is the width
	tooth := toothWithBox([4]int{100, 100, 160, 180})
	m := e.Measure(tooth, nil)

	if m.Method != types.MethodBoundingBox {
		t.Errorf("Expected bounding-box method without a gray plane, got %s", m.Method)
	}
	if m.WidthPixels != 60 {
		t.Errorf("Expected 60 pixels, got %v", m.WidthPixels)
	}
	expected := 60 * 0.12 / 1.25
	if math.Abs(m.WidthMM-expected) > 1e-9 {
		t.Errorf("Expected %.4fmm, got %v", expected, m.WidthMM)
	}
	if m.CalibrationFactor != 0.12 {
		t.Errorf("Expected calibration factor 0.12, got %v", m.CalibrationFactor)
	}
}

func TestMeasurePrincipalAxis(t *testing.T) {
	e := New()

	// Bright 20x60 blob inside a looser 40x80 box
	gray := createTestGray(200, 200, 100, 100, 20, 60)
	tooth := toothWithBox([4]int{80, 60, 120, 140})

	m := e.Measure(tooth, gray)

	if m.Method != types.MethodPrincipalAxis {
		t.Fatalf("Expected principal-axis method, got %s", m.Method)
	}
	// The minor-axis extent tracks the blob width, not the box width
	if m.WidthPixels < 15 || m.WidthPixels > 25 {
		t.Errorf("Expected width near 20px, got %v", m.WidthPixels)
	}
	if m.WidthPixels >= 40 {
		t.Errorf("Principal-axis width should undercut the box dimension, got %v", m.WidthPixels)
	}
}

func TestMeasureFallsBackOnFlatRegion(t *testing.T) {
	e := New()

	// No contrast inside the box, so thresholding yields no contour points
	gray := image.NewGray(image.Rect(0, 0, 200, 200))
	tooth := toothWithBox([4]int{80, 60, 120, 140})

	m := e.Measure(tooth, gray)

	if m.Method != types.MethodBoundingBox {
		t.Errorf("Flat region should fall back to bounding box, got %s", m.Method)
	}
	if m.WidthPixels != 40 {
		t.Errorf("Expected 40 pixels from the box, got %v", m.WidthPixels)
	}
}

func TestMeasureBoxOutsideImage(t *testing.T) {
	e := New()

	gray := createTestGray(200, 200, 100, 100, 20, 60)
	tooth := toothWithBox([4]int{300, 300, 360, 380})

	m := e.Measure(tooth, gray)

	if m.Method != types.MethodBoundingBox {
		t.Errorf("Box outside the image should fall back to bounding box, got %s", m.Method)
	}
}

func TestClampPair(t *testing.T) {
	e := New()

	molar := types.Measurement{WidthMM: 9.0}
	premolar := types.Measurement{WidthMM: 9.5}

	if !e.ClampPair(&molar, &premolar) {
		t.Fatal("Oversized premolar should be clamped")
	}
	if math.Abs(premolar.WidthMM-7.65) > 1e-9 {
		t.Errorf("Expected clamped width 7.65, got %v", premolar.WidthMM)
	}
	if !premolar.Clamped {
		t.Error("Clamped flag not set")
	}
	if molar.WidthMM != 9.0 {
		t.Errorf("Molar measurement must not change, got %v", molar.WidthMM)
	}
}

func TestClampPairNoOp(t *testing.T) {
	e := New()

	molar := types.Measurement{WidthMM: 10.0}
	premolar := types.Measurement{WidthMM: 8.0}

	if e.ClampPair(&molar, &premolar) {
		t.Error("Smaller premolar should not be clamped")
	}
	if premolar.WidthMM != 8.0 || premolar.Clamped {
		t.Errorf("Premolar modified without cause: %+v", premolar)
	}
}

func TestClampPairDisabled(t *testing.T) {
	cfg := DefaultConfig()
	cfg.EnforceSizeConstraint = false
	e, err := NewWithConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}

	molar := types.Measurement{WidthMM: 9.0}
	premolar := types.Measurement{WidthMM: 9.5}

	if e.ClampPair(&molar, &premolar) {
		t.Error("Disabled constraint should never clamp")
	}
	if premolar.WidthMM != 9.5 {
		t.Errorf("Raw measurement should survive, got %v", premolar.WidthMM)
	}
}

func TestPlausible(t *testing.T) {
	e := New()

	tests := []struct {
		name     string
		molar    float64
		premolar float64
		want     bool
	}{
		{"typical pair", 10.2, 8.1, true},
		{"premolar too narrow", 10.2, 1.5, false},
		{"molar too wide", 15.5, 8.0, false},
		{"difference too large", 14.9, 2.1, false},
		{"difference at the bound", 10.5, 2.5, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Plausible(types.Measurement{WidthMM: tt.molar}, types.Measurement{WidthMM: tt.premolar})
			if got != tt.want {
				t.Errorf("Plausible(%v, %v) = %v, want %v", tt.molar, tt.premolar, got, tt.want)
			}
		})
	}
}

func BenchmarkMeasurePrincipalAxis(b *testing.B) {
	e := New()
	gray := createTestGray(1600, 800, 400, 400, 60, 90)
	tooth := toothWithBox([4]int{350, 340, 450, 460})

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		e.Measure(tooth, gray)
	}
}
