package embedding

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
)

// CLIP image normalisation constants.
var (
	clipMean = [3]float32{0.48145466, 0.4578275, 0.40821073}
	clipStd  = [3]float32{0.26862954, 0.26130258, 0.27577711}
)

// PixelValues decodes data and returns a 1x3xSxS NCHW tensor body, resized with
// bilinear sampling and normalised with the CLIP mean and std.
func PixelValues(data []byte, size int) ([]float32, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to decode image: %v", ErrInvalidInput, err)
	}
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return nil, fmt.Errorf("%w: empty image", ErrInvalidInput)
	}

	plane := size * size
	out := make([]float32, 3*plane)
	sx := float64(b.Dx()) / float64(size)
	sy := float64(b.Dy()) / float64(size)
	for y := 0; y < size; y++ {
		fy := (float64(y)+0.5)*sy - 0.5
		for x := 0; x < size; x++ {
			fx := (float64(x)+0.5)*sx - 0.5
			rgb := bilinear(img, b, fx, fy)
			for c := 0; c < 3; c++ {
				out[c*plane+y*size+x] = (rgb[c] - clipMean[c]) / clipStd[c]
			}
		}
	}
	return out, nil
}

// bilinear samples img at fractional coordinates relative to b.Min, returning RGB in [0,1].
func bilinear(img image.Image, b image.Rectangle, fx, fy float64) [3]float32 {
	x0, y0 := clampInt(int(fx), 0, b.Dx()-1), clampInt(int(fy), 0, b.Dy()-1)
	x1, y1 := clampInt(x0+1, 0, b.Dx()-1), clampInt(y0+1, 0, b.Dy()-1)
	wx := float32(clampFloat(fx-float64(x0), 0, 1))
	wy := float32(clampFloat(fy-float64(y0), 0, 1))

	p00 := rgbAt(img, b.Min.X+x0, b.Min.Y+y0)
	p10 := rgbAt(img, b.Min.X+x1, b.Min.Y+y0)
	p01 := rgbAt(img, b.Min.X+x0, b.Min.Y+y1)
	p11 := rgbAt(img, b.Min.X+x1, b.Min.Y+y1)

	var out [3]float32
	for c := 0; c < 3; c++ {
		top := p00[c]*(1-wx) + p10[c]*wx
		bottom := p01[c]*(1-wx) + p11[c]*wx
		out[c] = top*(1-wy) + bottom*wy
	}
	return out
}

func rgbAt(img image.Image, x, y int) [3]float32 {
	r, g, b, _ := img.At(x, y).RGBA()
	return [3]float32{float32(r) / 65535, float32(g) / 65535, float32(b) / 65535}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
