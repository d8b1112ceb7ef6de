package raster

import (
	"bytes"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
)

// MaxPixels bounds width*height of a decoded image. An NRGBA buffer this
// size takes 256 MiB.
const MaxPixels = 1 << 26

// Decode decodes PNG or JPEG bytes into a pixel buffer. It returns the
// format name reported by the image package ("png" or "jpeg").
func Decode(data []byte) (*image.NRGBA, string, error) {
	if len(data) == 0 {
		return nil, "", fmt.Errorf("decode image: empty input")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if uint64(cfg.Width)*uint64(cfg.Height) > MaxPixels {
		return nil, "", fmt.Errorf("decode image: %dx%d exceeds %d pixels", cfg.Width, cfg.Height, MaxPixels)
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", fmt.Errorf("decode image: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, format, fmt.Errorf("decode image: %s has no pixels", format)
	}
	return FromImage(img), format, nil
}
