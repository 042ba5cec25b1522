// Package measure converts the pixel geometry of classified teeth into
// calibrated mesiodistal widths.
package measure

import (
	"errors"
	"image"

	"gonum.org/v1/gonum/mat"

	"github.com/dentalvision/espace-analyzer/pkg/anatomy"
	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// ErrCalibrationMisconfigured reports a non-positive calibration factor.
// This is a configuration error and is rejected before any processing.
var ErrCalibrationMisconfigured = errors.New("measure: calibration factor must be positive")

// Config holds calibration and measurement policy.
type Config struct {
	MMPerPixel          float64 `mapstructure:"mm_per_pixel"`         // panoramic default 0.12
	MagnificationFactor float64 `mapstructure:"magnification_factor"` // panoramic geometric magnification
	PreferPrincipalAxis bool    `mapstructure:"prefer_principal_axis"`

	// EnforceSizeConstraint applies the legacy premolar clamp: a premolar
	// measured wider than its paired molar is overridden to
	// molar * ClampRatio. The override is flagged on the measurement,
	// never applied silently. Disable to surface the raw measurement.
	EnforceSizeConstraint bool    `mapstructure:"enforce_size_constraint"`
	ClampRatio            float64 `mapstructure:"clamp_ratio"`

	// Plausibility bounds used to flag pairs for manual verification.
	MinWidthMM      float64 `mapstructure:"min_width_mm"`
	MaxWidthMM      float64 `mapstructure:"max_width_mm"`
	MaxDifferenceMM float64 `mapstructure:"max_difference_mm"`
}

// DefaultConfig returns panoramic radiograph calibration.
func DefaultConfig() Config {
	return Config{
		MMPerPixel:            0.12,
		MagnificationFactor:   1.25,
		PreferPrincipalAxis:   true,
		EnforceSizeConstraint: true,
		ClampRatio:            0.85,
		MinWidthMM:            2.0,
		MaxWidthMM:            15.0,
		MaxDifferenceMM:       8.0,
	}
}

// Engine measures classified teeth.
type Engine struct {
	config Config
}

// New creates an Engine with default configuration.
func New() *Engine {
	return &Engine{config: DefaultConfig()}
}

// NewWithConfig creates an Engine with custom configuration; the
// calibration factors are validated up front.
func NewWithConfig(config Config) (*Engine, error) {
	if config.MMPerPixel <= 0 || config.MagnificationFactor <= 0 {
		return nil, ErrCalibrationMisconfigured
	}
	if config.ClampRatio <= 0 || config.ClampRatio > 1 {
		config.ClampRatio = DefaultConfig().ClampRatio
	}
	return &Engine{config: config}, nil
}

// Config returns the engine's effective configuration.
func (e *Engine) Config() Config {
	return e.config
}

// Measure derives the calibrated width of one tooth. When the principal-axis
// method is preferred and the gray plane is available, the tooth's contour
// points are extracted from the box and projected onto their principal axes;
// otherwise the shorter bounding-box dimension is used, which avoids
// conflating crown height with mesiodistal width.
func (e *Engine) Measure(tooth anatomy.ClassifiedTooth, gray *image.Gray) types.Measurement {
	method := types.MethodBoundingBox
	widthPx := float64(minInt(tooth.Detection.Width(), tooth.Detection.Height()))

	if e.config.PreferPrincipalAxis && gray != nil {
		if w, ok := principalAxisWidth(gray, tooth.Detection.BBox); ok {
			widthPx = w
			method = types.MethodPrincipalAxis
		}
	}

	return types.Measurement{
		WidthMM:           widthPx * e.config.MMPerPixel / e.config.MagnificationFactor,
		WidthPixels:       widthPx,
		Method:            method,
		CalibrationFactor: e.config.MMPerPixel,
	}
}

// ClampPair enforces the anatomical size expectation that a primary molar
// is wider than its succeeding premolar. Returns true when the premolar
// measurement was overridden.
func (e *Engine) ClampPair(molar *types.Measurement, premolar *types.Measurement) bool {
	if !e.config.EnforceSizeConstraint {
		return false
	}
	if premolar.WidthMM <= molar.WidthMM {
		return false
	}
	premolar.WidthMM = molar.WidthMM * e.config.ClampRatio
	premolar.Clamped = true
	return true
}

// Plausible reports whether both widths and their difference fall inside
// the configured clinical plausibility bounds.
func (e *Engine) Plausible(molar, premolar types.Measurement) bool {
	for _, w := range []float64{molar.WidthMM, premolar.WidthMM} {
		if w < e.config.MinWidthMM || w > e.config.MaxWidthMM {
			return false
		}
	}
	diff := molar.WidthMM - premolar.WidthMM
	if diff < 0 {
		diff = -diff
	}
	return diff <= e.config.MaxDifferenceMM
}

// principalAxisWidth fits a principal axis to the tooth's foreground points
// inside the bounding box and returns the extent of the minor axis. Returns
// false when too few contour points survive thresholding, in which case the
// caller falls back to the bounding-box method.
func principalAxisWidth(gray *image.Gray, bbox [4]int) (float64, bool) {
	rect := image.Rect(bbox[0], bbox[1], bbox[2], bbox[3]).Intersect(gray.Bounds())
	if rect.Empty() {
		return 0, false
	}

	threshold := otsuThreshold(gray, rect)

	var xs, ys []float64
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			if gray.GrayAt(x, y).Y >= threshold {
				xs = append(xs, float64(x))
				ys = append(ys, float64(y))
			}
		}
	}
	if len(xs) < 5 {
		return 0, false
	}

	meanX, meanY := mean(xs), mean(ys)
	var sxx, syy, sxy float64
	for i := range xs {
		dx, dy := xs[i]-meanX, ys[i]-meanY
		sxx += dx * dx
		syy += dy * dy
		sxy += dx * dy
	}
	n := float64(len(xs))
	cov := mat.NewSymDense(2, []float64{sxx / n, sxy / n, sxy / n, syy / n})

	var eig mat.EigenSym
	if !eig.Factorize(cov, true) {
		return 0, false
	}
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	// Extent of the point cloud along each eigenvector
	var extents [2]float64
	for axis := 0; axis < 2; axis++ {
		vx, vy := vecs.At(0, axis), vecs.At(1, axis)
		lo, hi := 0.0, 0.0
		for i := range xs {
			p := (xs[i]-meanX)*vx + (ys[i]-meanY)*vy
			if i == 0 || p < lo {
				lo = p
			}
			if i == 0 || p > hi {
				hi = p
			}
		}
		extents[axis] = hi - lo
	}

	// The mesiodistal width is the smaller of the two axis extents
	w := extents[0]
	if extents[1] < w {
		w = extents[1]
	}
	if w <= 0 {
		return 0, false
	}
	return w, true
}

// otsuThreshold picks the gray level maximizing between-class variance
// within the given rectangle.
func otsuThreshold(gray *image.Gray, rect image.Rectangle) uint8 {
	var hist [256]int
	total := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			hist[gray.GrayAt(x, y).Y]++
			total++
		}
	}
	if total == 0 {
		return 128
	}

	var sum float64
	for i, c := range hist {
		sum += float64(i) * float64(c)
	}

	var sumB, wB float64
	var best float64
	threshold := 128
	for i := 0; i < 256; i++ {
		wB += float64(hist[i])
		if wB == 0 {
			continue
		}
		wF := float64(total) - wB
		if wF == 0 {
			break
		}
		sumB += float64(i) * float64(hist[i])
		mB := sumB / wB
		mF := (sum - sumB) / wF
		between := wB * wF * (mB - mF) * (mB - mF)
		if between > best {
			best = between
			threshold = i
		}
	}
	return uint8(threshold)
}

func mean(vals []float64) float64 {
	var s float64
	for _, v := range vals {
		s += v
	}
	return s / float64(len(vals))
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
