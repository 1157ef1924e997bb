package statistics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	s := NewStatistics()

	s.AddFilesFound(3)
	s.IncrementProcessed()
	s.IncrementProcessed()
	s.IncrementReduced()
	s.IncrementAlreadyUnder()
	s.IncrementErrors()
	s.AddBytes(1000, 400)
	s.AddBytes(2000, 600)

	assert.EqualValues(t, 3, s.TotalFilesFound)
	assert.EqualValues(t, 2, s.TotalFilesProcessed)
	assert.EqualValues(t, 1, s.FilesReduced)
	assert.EqualValues(t, 1, s.FilesAlreadyUnder)
	assert.EqualValues(t, 1, s.FilesWithErrors)
	assert.EqualValues(t, 2000, s.BytesSaved())
}

func TestAddError(t *testing.T) {
	s := NewStatistics()
	s.AddError("/tmp/a.jpg", "reduce", "boom")

	assert.Len(t, s.Errors, 1)
	assert.Equal(t, "/tmp/a.jpg", s.Errors[0].FilePath)
	assert.Equal(t, "reduce", s.Errors[0].Operation)

	summary := s.GetSummary()
	assert.Contains(t, summary, "/tmp/a.jpg")
	assert.Contains(t, summary, "boom")
}

func TestGetSummary(t *testing.T) {
	s := NewStatistics()
	s.AddFilesFound(2)
	s.IncrementProcessed()
	s.IncrementReduced()

	summary := s.GetSummary()
	assert.Contains(t, summary, "Files found: 2")
	assert.Contains(t, summary, "Files processed: 1")
	assert.Contains(t, summary, "Files reduced: 1")
	assert.Contains(t, summary, "Duration:")
}

func TestFinish(t *testing.T) {
	s := NewStatistics()
	s.Finish()

	assert.False(t, s.EndTime.IsZero())
	assert.GreaterOrEqual(t, s.Duration, time.Duration(0))
}
