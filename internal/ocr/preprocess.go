package ocr

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"math"

	"github.com/up-zero/gotool/imageutil"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// ImageInfo describes an encoded image without decoding its pixels
type ImageInfo struct {
	Format string
	Width  int
	Height int
}

// Inspect reads the image header
func Inspect(data []byte) (ImageInfo, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageInfo{}, fmt.Errorf("unrecognized image: %w", err)
	}
	return ImageInfo{Format: format, Width: cfg.Width, Height: cfg.Height}, nil
}

// Decode decodes any registered image format
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Prepare is the shared first step of every strategy: the image is scaled so
// its longer side lies within [minDimension, maxDimension], then converted
// to grayscale. A zero bound disables that side of the check.
func Prepare(src image.Image, minDimension, maxDimension int) *image.Gray {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	longer := w
	if h > longer {
		longer = h
	}

	target := 0
	switch {
	case longer == 0:
	case maxDimension > 0 && longer > maxDimension:
		target = maxDimension
	case minDimension > 0 && longer < minDimension:
		target = minDimension
	}
	if target > 0 {
		scale := float64(target) / float64(longer)
		nw := max(1, int(math.Round(float64(w)*scale)))
		nh := max(1, int(math.Round(float64(h)*scale)))
		src = imageutil.Resize(src, nw, nh)
	}

	return imageutil.Grayscale(src)
}

// toGray avoids a second conversion when imageutil already returned gray
func toGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok {
		return g
	}
	return imageutil.Grayscale(img)
}

type transform func(*image.Gray) *image.Gray

var transforms = map[StrategyKind]transform{
	StrategyGrayscale: func(g *image.Gray) *image.Gray { return g },
	StrategyNormalize: stretch,
	StrategyThreshold: threshold,
	StrategyDenoise:   func(g *image.Gray) *image.Gray { return stretch(toGray(imageutil.MedianBlur(g, 1))) },
	StrategyGamma:     func(g *image.Gray) *image.Gray { return stretch(gamma(g, 0.6)) },
	StrategyInvert:    func(g *image.Gray) *image.Gray { return stretch(toGray(imageutil.Invert(g))) },
}

// Apply runs one strategy over a prepared image and encodes the result as
// PNG for the engine. base is never modified.
func Apply(kind StrategyKind, base *image.Gray) ([]byte, error) {
	fn, ok := transforms[kind]
	if !ok {
		return nil, fmt.Errorf("unknown strategy %q", kind)
	}
	out := fn(base)

	var buf bytes.Buffer
	if err := png.Encode(&buf, out); err != nil {
		return nil, fmt.Errorf("failed to encode %s image: %w", kind, err)
	}
	return buf.Bytes(), nil
}

func cloneGray(g *image.Gray) *image.Gray {
	out := image.NewGray(g.Bounds())
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		copy(out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)], g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)])
	}
	return out
}

// mapPixels returns a copy of g with every pixel passed through lut
func mapPixels(g *image.Gray, lut *[256]uint8) *image.Gray {
	out := cloneGray(g)
	b := out.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		row := out.Pix[out.PixOffset(b.Min.X, y):out.PixOffset(b.Max.X, y)]
		for i, v := range row {
			row[i] = lut[v]
		}
	}
	return out
}

func histogram(g *image.Gray) (hist [256]int, total int) {
	b := g.Bounds()
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for _, v := range g.Pix[g.PixOffset(b.Min.X, y):g.PixOffset(b.Max.X, y)] {
			hist[v]++
		}
	}
	return hist, b.Dx() * b.Dy()
}

// stretch maps the 1st..99th percentile range onto 0..255
func stretch(g *image.Gray) *image.Gray {
	hist, total := histogram(g)
	if total == 0 {
		return cloneGray(g)
	}

	lowCut, highCut := total/100, total-total/100
	lo, hi := 0, 255
	acc := 0
	for v := 0; v < 256; v++ {
		acc += hist[v]
		if acc > lowCut {
			lo = v
			break
		}
	}
	acc = 0
	for v := 0; v < 256; v++ {
		acc += hist[v]
		if acc >= highCut {
			hi = v
			break
		}
	}
	if hi <= lo {
		return cloneGray(g)
	}

	var lut [256]uint8
	span := float64(hi - lo)
	for v := 0; v < 256; v++ {
		switch {
		case v <= lo:
			lut[v] = 0
		case v >= hi:
			lut[v] = 255
		default:
			lut[v] = uint8(math.Round(float64(v-lo) * 255 / span))
		}
	}
	return mapPixels(g, &lut)
}

// threshold binarizes at the Otsu level; pixels at or below it turn black
func threshold(g *image.Gray) *image.Gray {
	t := imageutil.OtsuThreshold(g)
	if t < 255 {
		t++
	}
	return toGray(imageutil.Binarize(g, t))
}

func gamma(g *image.Gray, exp float64) *image.Gray {
	var lut [256]uint8
	for v := 0; v < 256; v++ {
		lut[v] = uint8(math.Round(255 * math.Pow(float64(v)/255, exp)))
	}
	return mapPixels(g, &lut)
}
