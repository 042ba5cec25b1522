package types

import "math"

// Detection is a single candidate tooth region returned by the detector.
// Coordinates are pixels in the preprocessed image, origin top-left.
type Detection struct {
	BBox       [4]int  `json:"bbox"` // x1, y1, x2, y2
	Confidence float64 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	ClassName  string  `json:"class_name"`
}

// Width returns the bounding box width in pixels.
func (d Detection) Width() int {
	return d.BBox[2] - d.BBox[0]
}

// Height returns the bounding box height in pixels.
func (d Detection) Height() int {
	return d.BBox[3] - d.BBox[1]
}

// Area returns the bounding box area in pixels.
func (d Detection) Area() int {
	return d.Width() * d.Height()
}

// Centroid returns the bounding box center.
func (d Detection) Centroid() (float64, float64) {
	return float64(d.BBox[0]+d.BBox[2]) / 2, float64(d.BBox[1]+d.BBox[3]) / 2
}

// CentroidDistance returns the Euclidean distance between two detection centroids.
func (d Detection) CentroidDistance(other Detection) float64 {
	x1, y1 := d.Centroid()
	x2, y2 := other.Centroid()
	return math.Hypot(x1-x2, y1-y2)
}

// MeasurementMethod identifies how a tooth width was derived.
type MeasurementMethod string

const (
	MethodBoundingBox   MeasurementMethod = "bounding_box"
	MethodPrincipalAxis MeasurementMethod = "principal_axis"
)

// Measurement is a calibrated width for one classified tooth.
type Measurement struct {
	WidthMM           float64           `json:"width_mm"`
	WidthPixels       float64           `json:"width_pixels"`
	Method            MeasurementMethod `json:"method"`
	CalibrationFactor float64           `json:"calibration_factor_used"`
	Clamped           bool              `json:"clamped,omitempty"`
}

// ToothResult describes one measured tooth inside a pair.
type ToothResult struct {
	ClassName  string  `json:"class_label"`
	WidthMM    float64 `json:"width_mm"`
	Confidence float64 `json:"confidence"`
	BBox       [4]int  `json:"bbox"`
}

// WidthDifference is the clinical outcome for one molar/premolar pair.
type WidthDifference struct {
	ValueMM              float64 `json:"value_mm"`
	Percentage           float64 `json:"percentage"`
	ClinicalSignificance string  `json:"clinical_significance"`
}

// PairResult packages one matched primary molar and premolar with their
// width difference. PremolarClamped reports that the premolar width was
// overridden by the anatomical size constraint rather than measured.
type PairResult struct {
	PrimaryMolar               ToothResult     `json:"primary_molar"`
	Premolar                   ToothResult     `json:"premolar"`
	WidthDifference            WidthDifference `json:"width_difference"`
	PremolarClamped            bool            `json:"premolar_clamped,omitempty"`
	RequiresManualVerification bool            `json:"requires_manual_verification,omitempty"`
}

// ImageQuality summarizes the preprocessed image.
type ImageQuality struct {
	Resolution string  `json:"resolution"`
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Sharpness  float64 `json:"sharpness"`
}

// AnalysisReport is the full response for a single radiograph.
type AnalysisReport struct {
	Pairs                   []PairResult `json:"pairs"`
	TotalPairsDetected      int          `json:"total_pairs_detected"`
	ImageQuality            ImageQuality `json:"image_quality"`
	ClinicalRecommendations []string     `json:"clinical_recommendations"`
	ProcessingTimeMS        int64        `json:"processing_time_ms"`
}

// ItemStatus is the per-image outcome inside a batch.
type ItemStatus string

const (
	StatusSuccess ItemStatus = "success"
	StatusError   ItemStatus = "error"
)

// BatchItemResult tags one batch input with its outcome.
type BatchItemResult struct {
	Filename string          `json:"filename"`
	Size     int64           `json:"size"`
	Status   ItemStatus      `json:"status"`
	Error    string          `json:"error,omitempty"`
	Report   *AnalysisReport `json:"report,omitempty"`
}

// BatchSummary aggregates the successful items of a batch.
type BatchSummary struct {
	TotalFiles             int            `json:"total_files"`
	ProcessedFiles         int            `json:"processed_files"`
	FailedFiles            int            `json:"failed_files"`
	AverageWidthDifference float64        `json:"average_width_difference"`
	SignificanceCounts     map[string]int `json:"significance_counts"`
}

// BatchReport is the response for a multi-image request, items in input order.
type BatchReport struct {
	Items   []BatchItemResult `json:"items"`
	Summary BatchSummary      `json:"summary"`
}
