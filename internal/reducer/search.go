package reducer

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"
)

// Search parameters. Quality descends from qualityStart to qualityFloor in
// qualityStep decrements; the scale factor decays geometrically by
// scaleStep and never reaches scaleFloor.
const (
	qualityStart = 95
	qualityFloor = 10
	qualityStep  = 5
	scaleStep    = 0.9
	scaleFloor   = 0.1
)

// trialState is the accumulator threaded through the search phases: the
// working candidate image, its encoded bytes, and the parameters that
// produced them.
type trialState struct {
	img     image.Image
	data    []byte
	size    int64
	quality int
	scale   float64
}

// searchRun holds per-call search state. best tracks the smallest trial
// seen across all phases so an exhausted search still reports the minimum
// achieved rather than whatever was attempted last.
type searchRun struct {
	ctx      context.Context
	reducer  *SizeReducer
	budget   int64
	best     trialState
	haveBest bool
}

// Reduce re-encodes img to fit within budget bytes, degrading compression
// quality at native resolution first and resolution second. Each trial
// must complete before the next is attempted; there is no speculative
// parallelism within one image.
func (r *SizeReducer) Reduce(ctx context.Context, img image.Image, originalSize, budget int64) (Report, []byte, error) {
	origDims := Dimensions{Width: img.Bounds().Dx(), Height: img.Bounds().Dy()}

	// Shortcut: already under budget, re-save as-is. Format conversion
	// (including white flattening) still applies.
	if originalSize <= budget {
		trial, err := r.encoder.Encode(img, 100)
		if err != nil {
			return Report{}, nil, fmt.Errorf("re-save: %w", err)
		}
		return Report{
			OriginalSizeMB:     toMB(originalSize),
			FinalSizeMB:        toMB(originalSize),
			QualityUsed:        100,
			ScaleFactor:        1.0,
			OriginalDimensions: origDims,
			FinalDimensions:    origDims,
			BudgetMet:          true,
			Message:            MessageAlreadyUnderLimit,
			originalBytes:      originalSize,
			finalBytes:         originalSize,
		}, trial.Data, nil
	}

	run := &searchRun{ctx: ctx, reducer: r, budget: budget}

	state, met, err := run.qualitySearch(img, 1.0)
	if err != nil {
		return Report{}, nil, err
	}
	if !met {
		// The lowest-quality trial stays the working baseline for the
		// scale phase even though it is still over budget.
		state, met, err = run.scaleSearch(img, state)
		if err != nil {
			return Report{}, nil, err
		}
	}

	final := state
	if !met && run.haveBest && run.best.size < final.size {
		final = run.best
	}

	reduction := float64(originalSize-final.size) / float64(originalSize) * 100

	r.log.WithFields(logrus.Fields{
		"operation":  "reduce",
		"quality":    final.quality,
		"scale":      final.scale,
		"budget":     budget,
		"final_size": final.size,
		"budget_met": met,
	}).Debug("search finished")

	return Report{
		OriginalSizeMB:      toMB(originalSize),
		FinalSizeMB:         toMB(final.size),
		ReductionPercentage: reduction,
		QualityUsed:         final.quality,
		ScaleFactor:         final.scale,
		OriginalDimensions:  origDims,
		FinalDimensions:     Dimensions{Width: final.img.Bounds().Dx(), Height: final.img.Bounds().Dy()},
		BudgetMet:           met,
		Message:             MessageReduced,
		originalBytes:       originalSize,
		finalBytes:          final.size,
	}, final.data, nil
}

// attempt runs one encoding trial and folds it into the best-so-far.
func (s *searchRun) attempt(img image.Image, quality int, scale float64) (trialState, error) {
	trial, err := s.reducer.encoder.Encode(img, quality)
	if err != nil {
		return trialState{}, err
	}
	state := trialState{
		img:     img,
		data:    trial.Data,
		size:    int64(trial.Size),
		quality: quality,
		scale:   scale,
	}
	if !s.haveBest || state.size < s.best.size {
		s.best = state
		s.haveBest = true
	}
	return state, nil
}

// qualitySearch descends the quality ladder at a fixed scale and accepts
// the first trial that fits the budget. When none fits, it returns the
// last (lowest-quality) trial with met=false.
func (s *searchRun) qualitySearch(img image.Image, scale float64) (trialState, bool, error) {
	var last trialState
	for q := qualityStart; q >= qualityFloor; q -= qualityStep {
		if err := s.ctx.Err(); err != nil {
			return trialState{}, false, err
		}
		state, err := s.attempt(img, q, scale)
		if err != nil {
			return trialState{}, false, err
		}
		if state.size <= s.budget {
			return state, true, nil
		}
		last = state
	}
	return last, false, nil
}

// scaleSearch shrinks the scale factor geometrically, resampling the
// original image (never a previous candidate) at each step and running a
// fresh quality search against the candidate. The loop stops before a step
// that would land at or below the floor, so the reported factor is always
// a power of scaleStep strictly above scaleFloor.
func (s *searchRun) scaleSearch(original image.Image, working trialState) (trialState, bool, error) {
	origW := original.Bounds().Dx()
	origH := original.Bounds().Dy()

	scale := 1.0
	current := working
	for current.size > s.budget {
		next := scale * scaleStep
		if next <= scaleFloor {
			break
		}
		scale = next

		w := int(math.Round(float64(origW) * scale))
		h := int(math.Round(float64(origH) * scale))
		if w < 1 || h < 1 {
			break
		}

		candidate := imaging.Resize(original, w, h, imaging.Lanczos)
		state, met, err := s.qualitySearch(candidate, scale)
		if err != nil {
			return trialState{}, false, err
		}
		current = state
		if met {
			return current, true, nil
		}
	}
	return current, false, nil
}
