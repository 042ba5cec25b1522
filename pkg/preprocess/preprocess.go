// Package preprocess normalizes raw radiograph bytes into the representation
// the tooth detector expects: grayscale, local-contrast enhanced, denoised,
// intensity-stretched, three channels.
package preprocess

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/effect"
	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
	_ "image/jpeg"
	_ "image/png"
)

// ErrImageDecode reports input bytes that cannot be parsed as a supported
// raster format. Fatal for the image; a batch marks the item failed.
var ErrImageDecode = errors.New("preprocess: cannot decode image")

// Config holds the preprocessing parameters.
type Config struct {
	ClipLimit    float64 // CLAHE clip limit, in multiples of the uniform bin height
	TileGridSize int     // CLAHE tiles per axis
	MedianRadius float64 // median denoise kernel radius in pixels, 0 disables
	Sharpen      bool    // optional post-denoise sharpening
}

// DefaultConfig matches typical panoramic radiograph settings.
func DefaultConfig() Config {
	return Config{
		ClipLimit:    3.0,
		TileGridSize: 8,
		MedianRadius: 2,
		Sharpen:      false,
	}
}

// Preprocessor is a pure transform; it keeps no per-image state.
type Preprocessor struct {
	config Config
}

// New creates a Preprocessor with default configuration.
func New() *Preprocessor {
	return &Preprocessor{config: DefaultConfig()}
}

// NewWithConfig creates a Preprocessor with custom configuration.
func NewWithConfig(config Config) *Preprocessor {
	if config.TileGridSize < 1 {
		config.TileGridSize = 1
	}
	return &Preprocessor{config: config}
}

// DecodeBytes decodes png/jpeg/webp image bytes.
func DecodeBytes(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	// Some webp variants slip past the registered decoder
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, ErrImageDecode
}

// Process decodes raw bytes and runs the full normalization chain.
func (p *Preprocessor) Process(raw []byte) (*image.NRGBA, error) {
	img, err := DecodeBytes(raw)
	if err != nil {
		return nil, err
	}
	return p.ProcessImage(img), nil
}

// ProcessImage runs the normalization chain on an already decoded image:
// grayscale -> tile-based CLAHE -> median denoise -> min-max stretch.
// The result is NRGBA with equal channels, the detector's 3-channel input.
func (p *Preprocessor) ProcessImage(img image.Image) *image.NRGBA {
	gray := toGray(imaging.Grayscale(img))

	equalized := claheEqualize(gray, p.config.ClipLimit, p.config.TileGridSize)

	denoised := equalized
	if p.config.MedianRadius > 0 {
		denoised = toGray(effect.Median(equalized, p.config.MedianRadius))
	}
	if p.config.Sharpen {
		denoised = toGray(effect.Sharpen(denoised))
	}

	stretched := stretchIntensity(denoised)

	return grayToNRGBA(stretched)
}

// toGray collapses any image to an 8-bit single channel representation.
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			out.Set(x-b.Min.X, y-b.Min.Y, color.GrayModel.Convert(img.At(x, y)))
		}
	}
	return out
}

// claheEqualize applies contrast-limited adaptive histogram equalization.
// The image is split into a tiles x tiles grid; each tile gets its own
// clipped, redistributed equalization mapping, and pixel mappings are
// bilinearly interpolated between the four surrounding tile centers.
func claheEqualize(gray *image.Gray, clipLimit float64, tiles int) *image.Gray {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	if w == 0 || h == 0 || tiles < 1 {
		return gray
	}
	if clipLimit < 1 {
		clipLimit = 1
	}

	tileW := (w + tiles - 1) / tiles
	tileH := (h + tiles - 1) / tiles

	// Per-tile clipped CDF mappings
	maps := make([][][256]uint8, tiles)
	for ty := 0; ty < tiles; ty++ {
		maps[ty] = make([][256]uint8, tiles)
		for tx := 0; tx < tiles; tx++ {
			x0, y0 := tx*tileW, ty*tileH
			x1, y1 := minInt(x0+tileW, w), minInt(y0+tileH, h)

			var hist [256]int
			count := 0
			for y := y0; y < y1; y++ {
				for x := x0; x < x1; x++ {
					hist[gray.GrayAt(x, y).Y]++
					count++
				}
			}
			if count == 0 {
				continue
			}

			// Clip the histogram and redistribute the excess uniformly
			limit := int(clipLimit * float64(count) / 256.0)
			if limit < 1 {
				limit = 1
			}
			excess := 0
			for i := range hist {
				if hist[i] > limit {
					excess += hist[i] - limit
					hist[i] = limit
				}
			}
			bonus := excess / 256
			for i := range hist {
				hist[i] += bonus
			}

			cum := 0
			scale := 255.0 / float64(count)
			for i := range hist {
				cum += hist[i]
				maps[ty][tx][i] = uint8(clampF(float64(cum)*scale, 0, 255))
			}
		}
	}

	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		// Fractional tile coordinates relative to tile centers
		fy := (float64(y) - float64(tileH)/2) / float64(tileH)
		ty0 := int(clampF(fy, 0, float64(tiles-1)))
		ty1 := minInt(ty0+1, tiles-1)
		wy := clampF(fy-float64(ty0), 0, 1)

		for x := 0; x < w; x++ {
			fx := (float64(x) - float64(tileW)/2) / float64(tileW)
			tx0 := int(clampF(fx, 0, float64(tiles-1)))
			tx1 := minInt(tx0+1, tiles-1)
			wx := clampF(fx-float64(tx0), 0, 1)

			v := gray.GrayAt(x, y).Y
			top := (1-wx)*float64(maps[ty0][tx0][v]) + wx*float64(maps[ty0][tx1][v])
			bot := (1-wx)*float64(maps[ty1][tx0][v]) + wx*float64(maps[ty1][tx1][v])
			out.SetGray(x, y, color.Gray{Y: uint8(clampF((1-wy)*top+wy*bot, 0, 255))})
		}
	}
	return out
}

// stretchIntensity renormalizes the gray range to the full 0..255 span.
func stretchIntensity(gray *image.Gray) *image.Gray {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	lo, hi := uint8(255), uint8(0)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := gray.GrayAt(x, y).Y
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
	}
	if hi <= lo {
		return gray
	}
	out := image.NewGray(image.Rect(0, 0, w, h))
	span := float64(hi - lo)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := float64(gray.GrayAt(x, y).Y-lo) * 255.0 / span
			out.SetGray(x, y, color.Gray{Y: uint8(clampF(v, 0, 255))})
		}
	}
	return out
}

// grayToNRGBA replicates the single channel into three.
func grayToNRGBA(gray *image.Gray) *image.NRGBA {
	w, h := gray.Bounds().Dx(), gray.Bounds().Dy()
	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			v := gray.GrayAt(x, y).Y
			out.SetNRGBA(x, y, color.NRGBA{R: v, G: v, B: v, A: 255})
		}
	}
	return out
}

func clampF(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Luminance extracts the 8-bit gray plane from a preprocessed NRGBA image.
func Luminance(img *image.NRGBA) *image.Gray {
	return toGray(img)
}

// String implements fmt.Stringer for debug logging.
func (c Config) String() string {
	return fmt.Sprintf("clahe(clip=%.1f tiles=%d) median=%.0f sharpen=%t",
		c.ClipLimit, c.TileGridSize, c.MedianRadius, c.Sharpen)
}
