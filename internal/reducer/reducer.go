package reducer

import (
	"context"
	"errors"
	"image"
)

// Sentinel errors surfaced to callers. All are terminal for the item they
// apply to; the reducer never retries.
var (
	ErrSourceNotFound    = errors.New("source image not found")
	ErrDecodeFailure     = errors.New("unsupported or corrupted image data")
	ErrDirectoryNotFound = errors.New("input directory not found")
)

// Status messages carried in Report.Message.
const (
	MessageAlreadyUnderLimit = "already under limit"
	MessageReduced           = "reduced"
)

const bytesPerMB = 1024 * 1024

// Dimensions holds pixel dimensions of an image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Report describes the outcome of reducing a single image. BudgetMet
// distinguishes a satisfied budget from a best-effort result whose final
// size still exceeds it.
type Report struct {
	Filename            string     `json:"filename,omitempty"`
	OriginalSizeMB      float64    `json:"original_size_mb"`
	FinalSizeMB         float64    `json:"final_size_mb"`
	ReductionPercentage float64    `json:"reduction_percentage"`
	QualityUsed         int        `json:"quality_used"`
	ScaleFactor         float64    `json:"scale_factor"`
	OriginalDimensions  Dimensions `json:"original_dimensions"`
	FinalDimensions     Dimensions `json:"final_dimensions"`
	BudgetMet           bool       `json:"budget_met"`
	Message             string     `json:"message"`
	Error               string     `json:"error,omitempty"`

	// Exact byte counts backing the MB fields, kept for accounting.
	originalBytes int64
	finalBytes    int64
}

// BatchParams defines parameters for reducing a directory of images.
type BatchParams struct {
	InputDir    string
	OutputDir   string
	BudgetBytes int64
}

// Reducer re-encodes images so that the output fits a byte budget.
type Reducer interface {
	// Reduce runs the size-constrained search on an already decoded image.
	// originalSize is the byte size of the source as stored.
	Reduce(ctx context.Context, img image.Image, originalSize, budget int64) (Report, []byte, error)

	// ReduceFile reduces a single image file. When outputPath is non-empty
	// the final bytes are persisted there as a single write.
	ReduceFile(ctx context.Context, inputPath, outputPath string, budget int64) (Report, error)

	// ReduceBatch reduces every supported image in a directory, returning
	// one report per file. Per-file failures become error entries and do
	// not stop the remaining files.
	ReduceBatch(ctx context.Context, params BatchParams) ([]Report, error)
}

func toMB(b int64) float64 {
	return float64(b) / bytesPerMB
}
