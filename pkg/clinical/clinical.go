// Package clinical turns a pair of tooth width measurements into a width
// difference, a clinical-significance band, and deterministic
// recommendation text.
package clinical

import (
	"math"

	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// Band is one row of the significance table. A difference falls into the
// band only when both its absolute millimeter value and its absolute
// percentage exceed the band's thresholds.
type Band struct {
	Significance    string   `mapstructure:"significance"`
	MinAbsMM        float64  `mapstructure:"min_abs_mm"`
	MinAbsPercent   float64  `mapstructure:"min_abs_percent"`
	Recommendations []string `mapstructure:"recommendations"`
}

// Config holds the significance table, ordered most severe first.
type Config struct {
	Bands []Band `mapstructure:"bands"`
}

// DefaultConfig returns the standard e-space band table.
func DefaultConfig() Config {
	return Config{Bands: []Band{
		{
			Significance:  "Highly Significant",
			MinAbsMM:      3.0,
			MinAbsPercent: 25.0,
			Recommendations: []string{
				"Significant width discrepancy detected (>3mm)",
				"Space maintainer placement strongly recommended",
				"Immediate orthodontic consultation advised",
				"Monitor for potential crowding issues",
			},
		},
		{
			Significance:  "Significant",
			MinAbsMM:      2.0,
			MinAbsPercent: 15.0,
			Recommendations: []string{
				"Moderate width discrepancy detected (2-3mm)",
				"Consider space maintainer placement",
				"Orthodontic consultation recommended",
				"Regular monitoring advised",
			},
		},
		{
			Significance:  "Moderate",
			MinAbsMM:      1.0,
			MinAbsPercent: 8.0,
			Recommendations: []string{
				"Minor width discrepancy detected (1-2mm)",
				"Monitor eruption pattern closely",
				"Consider preventive measures",
				"Regular follow-up recommended",
			},
		},
	}}
}

// NormalSignificance is the fall-through classification when no band matches.
const NormalSignificance = "Normal"

var normalRecommendations = []string{
	"Normal width relationship detected",
	"Continue routine monitoring",
	"No immediate intervention required",
}

// InsufficientDetectionsRecommendation explains an empty but successful result.
const InsufficientDetectionsRecommendation = "Insufficient detections for analysis"

// Analyzer classifies width differences against the configured band table.
type Analyzer struct {
	config Config
}

// New creates an Analyzer with the default band table.
func New() *Analyzer {
	return &Analyzer{config: DefaultConfig()}
}

// NewWithConfig creates an Analyzer with a custom band table. Bands must
// already be ordered most severe first.
func NewWithConfig(config Config) *Analyzer {
	if len(config.Bands) == 0 {
		config = DefaultConfig()
	}
	return &Analyzer{config: config}
}

// Analyze computes the molar-premolar width difference and its band.
func (a *Analyzer) Analyze(molar, premolar types.Measurement) types.WidthDifference {
	value := molar.WidthMM - premolar.WidthMM
	pct := 0.0
	if premolar.WidthMM > 0 {
		pct = value / premolar.WidthMM * 100
	}
	return types.WidthDifference{
		ValueMM:              round2(value),
		Percentage:           round1(pct),
		ClinicalSignificance: a.Classify(value, pct),
	}
}

// Classify returns the significance band for a difference. Severity is
// monotone in both |value| and |percentage|: crossing any threshold can
// only move the result to a more severe band.
func (a *Analyzer) Classify(valueMM, percentage float64) string {
	absMM := math.Abs(valueMM)
	absPct := math.Abs(percentage)
	for _, band := range a.config.Bands {
		if absMM > band.MinAbsMM && absPct > band.MinAbsPercent {
			return band.Significance
		}
	}
	return NormalSignificance
}

// Recommend returns the fixed recommendation text for a difference.
func (a *Analyzer) Recommend(diff types.WidthDifference) []string {
	recs := normalRecommendations
	for _, band := range a.config.Bands {
		if band.Significance == diff.ClinicalSignificance {
			recs = band.Recommendations
			break
		}
	}

	out := make([]string, len(recs))
	copy(out, recs)

	absPct := math.Abs(diff.Percentage)
	if absPct > 30 {
		out = append(out, "Percentage difference >30% indicates high risk")
	} else if absPct > 20 {
		out = append(out, "Percentage difference >20% requires attention")
	}
	return out
}

// SeverityRank orders significance labels, 0 being the most severe band.
// Unknown labels rank with Normal.
func (a *Analyzer) SeverityRank(significance string) int {
	for i, band := range a.config.Bands {
		if band.Significance == significance {
			return i
		}
	}
	return len(a.config.Bands)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
