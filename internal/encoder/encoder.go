package encoder

import "image"

// Trial is the ephemeral outcome of a single encoding attempt.
type Trial struct {
	Data []byte
	Size int
}

// Encoder renders an image through a lossy codec at a given quality level.
type Encoder interface {
	// Encode returns the encoded bytes for img at quality (1-100).
	// A quality outside that range is a caller error.
	Encode(img image.Image, quality int) (Trial, error)
}
