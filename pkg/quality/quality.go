// Package quality computes simple statistical summaries of a preprocessed
// radiograph: brightness, contrast, and sharpness on a 0..1 scale.
package quality

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/stat"

	"github.com/dentalvision/espace-analyzer/pkg/types"
)

// sampleStep subsamples the pixel grid; quality scores do not need
// every pixel and large panoramics are several megapixels.
const sampleStep = 2

// Assess summarizes a grayscale image plane.
func Assess(gray *image.Gray) types.ImageQuality {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return types.ImageQuality{Resolution: "0x0"}
	}

	values := make([]float64, 0, (w/sampleStep+1)*(h/sampleStep+1))
	for y := 0; y < h; y += sampleStep {
		for x := 0; x < w; x += sampleStep {
			values = append(values, float64(gray.GrayAt(x, y).Y)/255.0)
		}
	}

	mean, std := stat.MeanStdDev(values, nil)

	return types.ImageQuality{
		Resolution: fmt.Sprintf("%dx%d", w, h),
		Brightness: round3(mean),
		Contrast:   round3(std),
		Sharpness:  round3(laplacianVariance(gray)),
	}
}

// laplacianVariance scores edge energy with a 4-neighbor Laplacian.
// Blurry radiographs score near zero.
func laplacianVariance(gray *image.Gray) float64 {
	b := gray.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 3 || h < 3 {
		return 0
	}

	responses := make([]float64, 0, (w/sampleStep+1)*(h/sampleStep+1))
	for y := 1; y < h-1; y += sampleStep {
		for x := 1; x < w-1; x += sampleStep {
			c := float64(gray.GrayAt(x, y).Y)
			lap := 4*c - float64(gray.GrayAt(x-1, y).Y) - float64(gray.GrayAt(x+1, y).Y) -
				float64(gray.GrayAt(x, y-1).Y) - float64(gray.GrayAt(x, y+1).Y)
			responses = append(responses, lap/255.0)
		}
	}
	if len(responses) < 2 {
		return 0
	}
	v := stat.Variance(responses, nil)
	// Variance of the normalized Laplacian is tiny; rescale into 0..1
	score := v * 100
	if score > 1 {
		score = 1
	}
	return score
}

func round3(v float64) float64 {
	return float64(int(v*1000+0.5)) / 1000
}
