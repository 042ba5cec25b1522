// Package anatomy assigns detected tooth regions to anatomical categories
// using positional priors over the dental arch. Raw detector labels are
// unreliable near the molar/premolar class boundary, so position decides
// and the label only breaks ties.
package anatomy

import (
	"math"
	"sort"
	"strings"

	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// Category is the resolved anatomical category of a detection.
type Category string

const (
	CategoryPrimaryMolar Category = "primary_molar"
	CategoryPremolar     Category = "premolar"
	CategoryRejected     Category = "rejected"
)

// Config holds the anatomical region fractions. Horizontal fractions run
// 0.0 at the anterior edge to 1.0 at the posterior edge of the visible arch;
// vertical fractions run 0.0 top to 1.0 bottom.
type Config struct {
	PosteriorStart float64 `mapstructure:"posterior_start"` // primary molar band
	PosteriorEnd   float64 `mapstructure:"posterior_end"`
	MiddleStart    float64 `mapstructure:"middle_start"` // premolar band
	MiddleEnd      float64 `mapstructure:"middle_end"`

	MolarVerticalMin    float64 `mapstructure:"molar_vertical_min"`
	MolarVerticalMax    float64 `mapstructure:"molar_vertical_max"`
	PremolarVerticalMin float64 `mapstructure:"premolar_vertical_min"`
	PremolarVerticalMax float64 `mapstructure:"premolar_vertical_max"`

	// PositionalBonus is the post-hoc confidence adjustment added to
	// detections that land inside their category's band. It is tracked
	// separately from the raw detector confidence.
	PositionalBonus float64 `mapstructure:"positional_bonus"`
}

// DefaultConfig carries the empirical panoramic-radiograph fractions.
func DefaultConfig() Config {
	return Config{
		PosteriorStart:      0.55,
		PosteriorEnd:        0.90,
		MiddleStart:         0.35,
		MiddleEnd:           0.75,
		MolarVerticalMin:    0.25,
		MolarVerticalMax:    0.75,
		PremolarVerticalMin: 0.35,
		PremolarVerticalMax: 0.80,
		PositionalBonus:     0.05,
	}
}

// ClassifiedTooth is a detection annotated with its resolved category and
// the fractional positions that produced it. AdjustedConfidence starts at
// the raw confidence and only changes via ApplyPositionalBonus.
type ClassifiedTooth struct {
	Detection          types.Detection
	Category           Category
	HorizontalFraction float64
	VerticalFraction   float64
	AdjustedConfidence float64
}

// Classification groups the outcome of one classifier pass.
type Classification struct {
	Molars    []ClassifiedTooth
	Premolars []ClassifiedTooth
	Rejected  []ClassifiedTooth
}

// Classifier applies the configured region bands.
type Classifier struct {
	config Config
}

// New creates a Classifier with default configuration.
func New() *Classifier {
	return &Classifier{config: DefaultConfig()}
}

// NewWithConfig creates a Classifier with custom configuration.
func NewWithConfig(config Config) *Classifier {
	return &Classifier{config: config}
}

// Classify resolves each detection to a category. The horizontal fraction
// uses the image width as the visible arch extent; a detection left of the
// midline mirrors so that 1.0 is always the posterior-most edge of its side.
func (c *Classifier) Classify(detections []types.Detection, imgW, imgH int) Classification {
	var out Classification
	if imgW <= 0 || imgH <= 0 {
		return out
	}

	for _, det := range detections {
		cx, cy := det.Centroid()
		hFrac := horizontalFraction(cx, imgW)
		vFrac := cy / float64(imgH)

		tooth := ClassifiedTooth{
			Detection:          det,
			HorizontalFraction: hFrac,
			VerticalFraction:   vFrac,
			AdjustedConfidence: det.Confidence,
		}
		tooth.Category = c.categorize(tooth)

		switch tooth.Category {
		case CategoryPrimaryMolar:
			out.Molars = append(out.Molars, tooth)
		case CategoryPremolar:
			out.Premolars = append(out.Premolars, tooth)
		default:
			out.Rejected = append(out.Rejected, tooth)
		}
	}

	// Deterministic downstream order: highest confidence first
	byConfidenceDesc(out.Molars)
	byConfidenceDesc(out.Premolars)
	return out
}

// horizontalFraction maps a centroid x to the anterior(0)..posterior(1)
// axis of its own side of the arch. The panoramic midline is the most
// anterior visible point; the image edges are the most posterior.
func horizontalFraction(cx float64, imgW int) float64 {
	mid := float64(imgW) / 2
	if mid == 0 {
		return 0
	}
	return math.Abs(cx-mid) / mid
}

func (c *Classifier) categorize(t ClassifiedTooth) Category {
	molarOK := c.inMolarBand(t)
	premolarOK := c.inPremolarBand(t)

	switch {
	case molarOK && premolarOK:
		return c.resolveTie(t)
	case molarOK:
		return CategoryPrimaryMolar
	case premolarOK:
		return CategoryPremolar
	default:
		return CategoryRejected
	}
}

func (c *Classifier) inMolarBand(t ClassifiedTooth) bool {
	return t.HorizontalFraction >= c.config.PosteriorStart &&
		t.HorizontalFraction <= c.config.PosteriorEnd &&
		t.VerticalFraction >= c.config.MolarVerticalMin &&
		t.VerticalFraction <= c.config.MolarVerticalMax
}

func (c *Classifier) inPremolarBand(t ClassifiedTooth) bool {
	return t.HorizontalFraction >= c.config.MiddleStart &&
		t.HorizontalFraction <= c.config.MiddleEnd &&
		t.VerticalFraction >= c.config.PremolarVerticalMin &&
		t.VerticalFraction <= c.config.PremolarVerticalMax
}

// resolveTie handles detections eligible for both overlapping bands.
// The detector's own label wins when it is unambiguous; otherwise the
// band whose center is nearer to the detection's horizontal fraction.
func (c *Classifier) resolveTie(t ClassifiedTooth) Category {
	if cat, ok := labelHint(t.Detection.ClassName); ok {
		return cat
	}

	molarCenter := (c.config.PosteriorStart + c.config.PosteriorEnd) / 2
	premolarCenter := (c.config.MiddleStart + c.config.MiddleEnd) / 2
	if math.Abs(t.HorizontalFraction-molarCenter) <= math.Abs(t.HorizontalFraction-premolarCenter) {
		return CategoryPrimaryMolar
	}
	return CategoryPremolar
}

// labelHint inspects the raw detector class label for unambiguous terms.
func labelHint(className string) (Category, bool) {
	name := strings.ToLower(className)
	for _, term := range []string{"primary", "deciduous"} {
		if strings.Contains(name, term) {
			return CategoryPrimaryMolar, true
		}
	}
	for _, term := range []string{"premolar", "bicuspid"} {
		if strings.Contains(name, term) {
			return CategoryPremolar, true
		}
	}
	return CategoryRejected, false
}

// ApplyPositionalBonus raises AdjustedConfidence by the configured flat
// bonus for every accepted tooth, capped at 1.0. This is a heuristic
// certainty adjustment layered on top of, never merged into, the raw
// detector confidence.
func (c *Classifier) ApplyPositionalBonus(teeth []ClassifiedTooth) {
	if c.config.PositionalBonus <= 0 {
		return
	}
	for i := range teeth {
		if teeth[i].Category == CategoryRejected {
			continue
		}
		adjusted := teeth[i].Detection.Confidence + c.config.PositionalBonus
		if adjusted > 1 {
			adjusted = 1
		}
		teeth[i].AdjustedConfidence = adjusted
	}
}

func byConfidenceDesc(teeth []ClassifiedTooth) {
	sort.SliceStable(teeth, func(i, j int) bool {
		return teeth[i].Detection.Confidence > teeth[j].Detection.Confidence
	})
}
