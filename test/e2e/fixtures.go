package e2e

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/color/palette"
	"image/gif"
	"image/jpeg"
	"image/png"
)

// SupportedImageFormats are the encodings the ingest path accepts and the tests exercise.
var SupportedImageFormats = []string{"png", "jpeg", "gif"}

// EncodeImage renders a small image whose pixels depend on seed, so different seeds
// never share bytes, and encodes it in format.
func EncodeImage(format string, seed int) ([]byte, error) {
	const w, h = 16, 12
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8(seed * 37),
				G: uint8(seed*11 + x*9),
				B: uint8(seed*5 + y*13),
				A: 255,
			})
		}
	}
	// The top row spells seed in black and white, which survives palette quantisation.
	for x := 0; x < w; x++ {
		c := color.RGBA{A: 255}
		if seed>>x&1 == 1 {
			c = color.RGBA{R: 255, G: 255, B: 255, A: 255}
		}
		img.Set(x, 0, c)
	}

	var buf bytes.Buffer
	var err error
	switch format {
	case "png":
		err = png.Encode(&buf, img)
	case "jpeg", "jpg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90})
	case "gif":
		pal := image.NewPaletted(img.Bounds(), palette.Plan9)
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				pal.Set(x, y, img.At(x, y))
			}
		}
		err = gif.Encode(&buf, pal, nil)
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// extension returns the file extension for format.
func extension(format string) string {
	if format == "jpeg" {
		return ".jpg"
	}
	return "." + format
}
