// Package pairing matches each accepted primary molar to its anatomically
// corresponding premolar by greedy nearest-centroid assignment.
package pairing

import (
	"github.com/dentalvision/espace-analyzer/pkg/anatomy"
)

// Config bounds which premolar can serve as a molar's pair.
type Config struct {
	// MaxPairDistancePx rejects matches whose centroids are implausibly
	// far apart for adjacent teeth on a panoramic scan.
	MaxPairDistancePx float64 `mapstructure:"max_pair_distance_px"`
}

// DefaultConfig returns the panoramic proximity threshold.
func DefaultConfig() Config {
	return Config{MaxPairDistancePx: 300}
}

// Pair associates exactly one primary molar with exactly one premolar.
type Pair struct {
	PrimaryMolar anatomy.ClassifiedTooth
	Premolar     anatomy.ClassifiedTooth
	DistancePx   float64
}

// Engine performs the matching.
type Engine struct {
	config Config
}

// New creates an Engine with default configuration.
func New() *Engine {
	return &Engine{config: DefaultConfig()}
}

// NewWithConfig creates an Engine with custom configuration.
func NewWithConfig(config Config) *Engine {
	return &Engine{config: config}
}

// Match builds pairs from a classification. Molars are processed in
// descending confidence order (the classifier's output order); each takes
// its nearest unclaimed, anatomically valid premolar. A molar with no valid
// candidate yields no pair, never an error. imgW fixes the arch midline
// used for the side and ordering constraints.
func (e *Engine) Match(cls anatomy.Classification, imgW int) []Pair {
	if len(cls.Molars) == 0 || len(cls.Premolars) == 0 {
		return nil
	}

	claimed := make([]bool, len(cls.Premolars))
	var pairs []Pair

	for _, molar := range cls.Molars {
		bestIdx := -1
		bestDist := e.config.MaxPairDistancePx

		for i, premolar := range cls.Premolars {
			if claimed[i] {
				continue
			}
			if !validOrdering(molar, premolar, imgW) {
				continue
			}
			d := molar.Detection.CentroidDistance(premolar.Detection)
			if d <= bestDist {
				bestDist = d
				bestIdx = i
			}
		}

		if bestIdx >= 0 {
			claimed[bestIdx] = true
			pairs = append(pairs, Pair{
				PrimaryMolar: molar,
				Premolar:     cls.Premolars[bestIdx],
				DistancePx:   bestDist,
			})
		}
	}
	return pairs
}

// validOrdering enforces the anatomical ordering constraint: both teeth on
// the same side of the arch midline, with the premolar centroid anterior
// (closer to the midline) than the molar centroid.
func validOrdering(molar, premolar anatomy.ClassifiedTooth, imgW int) bool {
	mid := float64(imgW) / 2
	mx, _ := molar.Detection.Centroid()
	px, _ := premolar.Detection.Centroid()

	sameSide := (mx-mid)*(px-mid) > 0
	return sameSide && molar.HorizontalFraction > premolar.HorizontalFraction
}
