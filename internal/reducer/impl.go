package reducer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/sirupsen/logrus"

	_ "golang.org/x/image/webp" // register WebP decoding

	"github.com/cogomez23/image-size-reducer/internal/config"
	"github.com/cogomez23/image-size-reducer/internal/encoder"
	"github.com/cogomez23/image-size-reducer/internal/logger"
	"github.com/cogomez23/image-size-reducer/internal/metadata"
	"github.com/cogomez23/image-size-reducer/internal/statistics"
)

// SizeReducer is the default implementation of the Reducer interface.
type SizeReducer struct {
	cfg     *config.Config
	log     *logrus.Logger
	stats   *statistics.Statistics
	encoder encoder.Encoder
}

// NewSizeReducer creates a SizeReducer. stats may be nil when no batch
// accounting is wanted.
func NewSizeReducer(cfg *config.Config, log *logrus.Logger, stats *statistics.Statistics) *SizeReducer {
	return &SizeReducer{
		cfg:     cfg,
		log:     log,
		stats:   stats,
		encoder: encoder.NewJPEGEncoder(),
	}
}

// ReduceFile reduces a single image file to fit the budget. When
// outputPath is non-empty the final bytes are written there in one write.
func (r *SizeReducer) ReduceFile(ctx context.Context, inputPath, outputPath string, budget int64) (Report, error) {
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}

	info, err := os.Stat(inputPath)
	if err != nil || info.IsDir() {
		return Report{}, fmt.Errorf("%w: %s", ErrSourceNotFound, inputPath)
	}

	img, err := imaging.Open(inputPath, imaging.AutoOrientation(true))
	if err != nil {
		return Report{}, fmt.Errorf("%w: %s: %v", ErrDecodeFailure, inputPath, err)
	}

	report, data, err := r.Reduce(ctx, img, info.Size(), budget)
	if err != nil {
		return Report{}, err
	}
	report.Filename = filepath.Base(inputPath)

	if outputPath != "" {
		if err := os.WriteFile(outputPath, data, 0644); err != nil {
			return Report{}, fmt.Errorf("write output: %w", err)
		}
		if r.cfg.Processing.PreserveMetadata {
			if err := metadata.CopyTagsAndMark(inputPath, outputPath); err != nil {
				logger.WithFile(r.log, outputPath).Warnf("metadata not preserved: %v", err)
			}
		}
	}

	logger.WithFileOperation(r.log, inputPath, "reduce").WithFields(logrus.Fields{
		"original_mb": report.OriginalSizeMB,
		"final_mb":    report.FinalSizeMB,
		"quality":     report.QualityUsed,
		"scale":       report.ScaleFactor,
		"budget_met":  report.BudgetMet,
	}).Info(report.Message)

	return report, nil
}

// ReduceBatch reduces every supported image under params.InputDir. Files
// that fail become error entries; the rest keep processing. Cancelling the
// context turns the remaining files into error entries too, so every file
// always gets a report. Images are processed concurrently, one worker per
// image, while each image's own search stays sequential.
func (r *SizeReducer) ReduceBatch(ctx context.Context, params BatchParams) ([]Report, error) {
	info, err := os.Stat(params.InputDir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrDirectoryNotFound, params.InputDir)
	}

	files, err := r.collectImageFiles(params.InputDir)
	if err != nil {
		return nil, fmt.Errorf("collect files: %w", err)
	}
	if r.cfg.Processing.SkipReduced {
		files = r.filterAlreadyReduced(files)
	}
	if len(files) == 0 {
		return nil, nil
	}

	if params.OutputDir != "" {
		if err := os.MkdirAll(params.OutputDir, 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	if r.stats != nil {
		r.stats.AddFilesFound(int64(len(files)))
	}

	numWorkers := r.cfg.Performance.WorkerThreads
	if numWorkers <= 0 {
		numWorkers = runtime.NumCPU()
	}
	if numWorkers < 2 {
		numWorkers = 2
	}

	type job struct {
		index int
		path  string
	}
	type result struct {
		index int
		rep   Report
	}

	jobs := make(chan job, len(files))
	results := make(chan result, len(files))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for j := range jobs {
				results <- result{index: j.index, rep: r.reduceOne(ctx, j.path, params)}
			}
		}()
	}

	for i, path := range files {
		jobs <- job{index: i, path: path}
	}
	close(jobs)

	wg.Wait()
	close(results)

	reports := make([]Report, len(files))
	for res := range results {
		reports[res.index] = res.rep
	}

	if r.stats != nil {
		r.stats.Finish()
	}
	return reports, nil
}

// reduceOne reduces a single batch entry and records its statistics.
func (r *SizeReducer) reduceOne(ctx context.Context, inputPath string, params BatchParams) Report {
	outputPath := ""
	if params.OutputDir != "" {
		name := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
		outputPath = filepath.Join(params.OutputDir, name+r.cfg.Processing.OutputSuffix+".jpg")
	}

	report, err := r.ReduceFile(ctx, inputPath, outputPath, params.BudgetBytes)
	if err != nil {
		if r.stats != nil {
			r.stats.IncrementProcessed()
			r.stats.IncrementErrors()
			r.stats.AddError(inputPath, "reduce", err.Error())
		}
		return Report{Filename: filepath.Base(inputPath), Error: err.Error()}
	}

	if r.stats != nil {
		r.stats.IncrementProcessed()
		if report.Message == MessageAlreadyUnderLimit {
			r.stats.IncrementAlreadyUnder()
		} else {
			r.stats.IncrementReduced()
		}
		r.stats.AddBytes(report.originalBytes, report.finalBytes)
	}
	return report
}

// collectImageFiles recursively collects files with supported extensions.
func (r *SizeReducer) collectImageFiles(inputDir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(inputDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if r.cfg.IsSupportedExtension(filepath.Ext(d.Name())) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// filterAlreadyReduced drops files already produced by this tool: JPEGs
// carrying the EXIF Software marker, or any file named with the output
// suffix when the marker cannot be read.
func (r *SizeReducer) filterAlreadyReduced(files []string) []string {
	type verdict struct {
		path string
		keep bool
	}

	numWorkers := runtime.NumCPU()
	jobs := make(chan string, len(files))
	results := make(chan verdict, len(files))

	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- verdict{path: path, keep: !r.isAlreadyReduced(path)}
			}
		}()
	}
	for _, path := range files {
		jobs <- path
	}
	close(jobs)

	wg.Wait()
	close(results)

	var filtered []string
	for v := range results {
		if v.keep {
			filtered = append(filtered, v.path)
		} else if r.stats != nil {
			r.stats.IncrementSkipped()
		}
	}
	return filtered
}

func (r *SizeReducer) isAlreadyReduced(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".jpg" || ext == ".jpeg" {
		if marked, err := metadata.HasReducerMark(path); err == nil {
			return marked
		}
	}
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return strings.HasSuffix(name, r.cfg.Processing.OutputSuffix)
}
