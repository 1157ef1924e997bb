package statistics

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Statistics accumulates counters for one reduction run. Counter fields
// are updated atomically so workers can report without coordination.
type Statistics struct {
	TotalFilesFound     int64
	TotalFilesProcessed int64
	FilesReduced        int64
	FilesAlreadyUnder   int64
	FilesSkipped        int64
	FilesWithErrors     int64

	BytesIn  int64
	BytesOut int64

	StartTime time.Time
	EndTime   time.Time
	Duration  time.Duration

	Errors []StatError

	mutex sync.RWMutex
}

// StatError records a per-file failure.
type StatError struct {
	FilePath  string
	Operation string
	Error     string
	Timestamp time.Time
}

// NewStatistics returns an empty Statistics with the start time set.
func NewStatistics() *Statistics {
	return &Statistics{StartTime: time.Now()}
}

// Finish records the end time and computes the duration.
func (s *Statistics) Finish() {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}

// AddFilesFound adds n to the found counter.
func (s *Statistics) AddFilesFound(n int64) {
	atomic.AddInt64(&s.TotalFilesFound, n)
}

// IncrementProcessed bumps the processed counter.
func (s *Statistics) IncrementProcessed() {
	atomic.AddInt64(&s.TotalFilesProcessed, 1)
}

// IncrementReduced bumps the reduced counter.
func (s *Statistics) IncrementReduced() {
	atomic.AddInt64(&s.FilesReduced, 1)
}

// IncrementAlreadyUnder bumps the counter of files already under budget.
func (s *Statistics) IncrementAlreadyUnder() {
	atomic.AddInt64(&s.FilesAlreadyUnder, 1)
}

// IncrementSkipped bumps the skipped counter.
func (s *Statistics) IncrementSkipped() {
	atomic.AddInt64(&s.FilesSkipped, 1)
}

// IncrementErrors bumps the error counter.
func (s *Statistics) IncrementErrors() {
	atomic.AddInt64(&s.FilesWithErrors, 1)
}

// AddBytes records the input and output byte counts of one file.
func (s *Statistics) AddBytes(in, out int64) {
	atomic.AddInt64(&s.BytesIn, in)
	atomic.AddInt64(&s.BytesOut, out)
}

// AddError records a per-file failure detail.
func (s *Statistics) AddError(filePath, operation, errMsg string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.Errors = append(s.Errors, StatError{
		FilePath:  filePath,
		Operation: operation,
		Error:     errMsg,
		Timestamp: time.Now(),
	})
}

// BytesSaved returns the total bytes saved across the run.
func (s *Statistics) BytesSaved() int64 {
	return atomic.LoadInt64(&s.BytesIn) - atomic.LoadInt64(&s.BytesOut)
}

// GetSummary returns a human-readable summary of the run.
func (s *Statistics) GetSummary() string {
	s.mutex.RLock()
	duration := s.Duration
	if s.EndTime.IsZero() {
		duration = time.Since(s.StartTime)
	}
	errCount := len(s.Errors)
	s.mutex.RUnlock()

	found := atomic.LoadInt64(&s.TotalFilesFound)
	processed := atomic.LoadInt64(&s.TotalFilesProcessed)
	reduced := atomic.LoadInt64(&s.FilesReduced)
	under := atomic.LoadInt64(&s.FilesAlreadyUnder)
	skipped := atomic.LoadInt64(&s.FilesSkipped)
	failed := atomic.LoadInt64(&s.FilesWithErrors)
	bytesIn := atomic.LoadInt64(&s.BytesIn)
	bytesOut := atomic.LoadInt64(&s.BytesOut)

	saved := bytesIn - bytesOut
	savedPct := 0.0
	if bytesIn > 0 {
		savedPct = float64(saved) * 100 / float64(bytesIn)
	}

	summary := fmt.Sprintf("Files found: %d\n", found)
	summary += fmt.Sprintf("Files processed: %d\n", processed)
	summary += fmt.Sprintf("Files reduced: %d\n", reduced)
	summary += fmt.Sprintf("Files already under budget: %d\n", under)
	summary += fmt.Sprintf("Files skipped: %d\n", skipped)
	summary += fmt.Sprintf("Files with errors: %d\n", failed)
	summary += fmt.Sprintf("Bytes saved: %.2f MB (%.1f%%)\n", float64(saved)/(1024*1024), savedPct)
	summary += fmt.Sprintf("Duration: %s", duration.Round(time.Millisecond))

	if errCount > 0 {
		summary += fmt.Sprintf("\nErrors (%d total):", errCount)
		s.mutex.RLock()
		limit := errCount
		if limit > 5 {
			limit = 5
		}
		for _, e := range s.Errors[:limit] {
			summary += fmt.Sprintf("\n  %s [%s]: %s", e.FilePath, e.Operation, e.Error)
		}
		s.mutex.RUnlock()
	}

	return summary
}
