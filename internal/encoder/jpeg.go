package encoder

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	"github.com/disintegration/imaging"
)

// JPEGEncoder encodes images to JPEG. Transparency is flattened onto a
// white background before encoding, since JPEG carries no alpha channel.
type JPEGEncoder struct{}

// NewJPEGEncoder returns a new JPEGEncoder.
func NewJPEGEncoder() *JPEGEncoder {
	return &JPEGEncoder{}
}

// Encode renders img as JPEG at the given quality and returns the bytes.
func (e *JPEGEncoder) Encode(img image.Image, quality int) (Trial, error) {
	if quality < 1 || quality > 100 {
		return Trial{}, fmt.Errorf("quality %d out of range [1, 100]", quality)
	}

	flat := FlattenToWhite(img)

	var buf bytes.Buffer
	buf.Grow(256 * 1024) // typical photo fits without regrowing
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(quality)); err != nil {
		return Trial{}, fmt.Errorf("jpeg encode: %w", err)
	}
	return Trial{Data: buf.Bytes(), Size: buf.Len()}, nil
}

// FlattenToWhite composites alpha-carrying or palette-indexed images onto
// an opaque pure-white background of identical dimensions. Images without
// transparency pass through unchanged.
func FlattenToWhite(img image.Image) image.Image {
	if !needsFlatten(img) {
		return img
	}
	bounds := img.Bounds()
	background := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	return imaging.Overlay(background, img, image.Pt(0, 0), 1.0)
}

func needsFlatten(img image.Image) bool {
	if _, ok := img.(*image.Paletted); ok {
		return true
	}
	if o, ok := img.(interface{ Opaque() bool }); ok {
		return !o.Opaque()
	}
	return false
}
