package encoder

import (
	"bytes"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noiseImage returns a deterministic opaque noise image. Noise compresses
// poorly, which keeps encoded sizes comfortably apart across qualities.
func noiseImage(w, h int, seed int64) *image.NRGBA {
	rng := rand.New(rand.NewSource(seed))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = uint8(rng.Intn(256))
		img.Pix[i+1] = uint8(rng.Intn(256))
		img.Pix[i+2] = uint8(rng.Intn(256))
		img.Pix[i+3] = 255
	}
	return img
}

func TestEncodeQualityValidation(t *testing.T) {
	enc := NewJPEGEncoder()
	img := noiseImage(16, 16, 1)

	tests := []struct {
		name    string
		quality int
		wantErr bool
	}{
		{name: "below range", quality: 0, wantErr: true},
		{name: "negative", quality: -5, wantErr: true},
		{name: "above range", quality: 101, wantErr: true},
		{name: "lower bound", quality: 1, wantErr: false},
		{name: "upper bound", quality: 100, wantErr: false},
		{name: "middle", quality: 50, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			trial, err := enc.Encode(img, tt.quality)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, len(trial.Data), trial.Size)
			assert.NotZero(t, trial.Size)
		})
	}
}

func TestEncodeRoundTripDimensions(t *testing.T) {
	enc := NewJPEGEncoder()
	img := noiseImage(120, 80, 2)

	trial, err := enc.Encode(img, 80)
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(trial.Data))
	require.NoError(t, err)
	assert.Equal(t, 120, decoded.Bounds().Dx())
	assert.Equal(t, 80, decoded.Bounds().Dy())
}

func TestEncodeSizeShrinksWithQuality(t *testing.T) {
	enc := NewJPEGEncoder()
	img := noiseImage(160, 120, 3)

	high, err := enc.Encode(img, 95)
	require.NoError(t, err)
	low, err := enc.Encode(img, 20)
	require.NoError(t, err)

	assert.Greater(t, high.Size, low.Size)
}

func TestEncodeFlattensTransparencyToWhite(t *testing.T) {
	// Fully transparent red must come out white, not red or black.
	img := image.NewNRGBA(image.Rect(0, 0, 32, 32))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = 200
		img.Pix[i+3] = 0
	}

	enc := NewJPEGEncoder()
	trial, err := enc.Encode(img, 95)
	require.NoError(t, err)

	decoded, err := imaging.Decode(bytes.NewReader(trial.Data))
	require.NoError(t, err)

	r, g, b, _ := decoded.At(16, 16).RGBA()
	assert.GreaterOrEqual(t, r>>8, uint32(245))
	assert.GreaterOrEqual(t, g>>8, uint32(245))
	assert.GreaterOrEqual(t, b>>8, uint32(245))
}

func TestFlattenOpaquePassThrough(t *testing.T) {
	img := noiseImage(24, 24, 4)
	assert.Same(t, image.Image(img), FlattenToWhite(img))
}

func TestFlattenPaletted(t *testing.T) {
	palette := color.Palette{
		color.NRGBA{R: 0, G: 0, B: 0, A: 0}, // transparent
		color.NRGBA{R: 10, G: 200, B: 30, A: 255},
	}
	img := image.NewPaletted(image.Rect(0, 0, 20, 20), palette)

	flat := FlattenToWhite(img)
	assert.NotSame(t, image.Image(img), flat)
	assert.Equal(t, 20, flat.Bounds().Dx())
	assert.Equal(t, 20, flat.Bounds().Dy())

	// All pixels were the transparent palette entry, so the result is white.
	r, g, b, _ := flat.At(10, 10).RGBA()
	assert.Equal(t, uint32(255), r>>8)
	assert.Equal(t, uint32(255), g>>8)
	assert.Equal(t, uint32(255), b>>8)
}
