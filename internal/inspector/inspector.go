// Package inspector reads basic file and EXIF properties of an image,
// backing the CLI's inspect command.
package inspector

import (
	"fmt"
	"image"
	"os"
	"time"

	"github.com/rwcarlsen/goexif/exif"
	"github.com/sirupsen/logrus"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// FileInfo describes an image file on disk.
type FileInfo struct {
	Path        string
	Format      string
	SizeBytes   int64
	Width       int
	Height      int
	CaptureDate *time.Time // nil when no EXIF date exists
	Orientation int        // 0 when absent
}

// SizeMB returns the file size in megabytes.
func (f *FileInfo) SizeMB() float64 {
	return float64(f.SizeBytes) / (1024 * 1024)
}

// Inspector reads image file properties.
type Inspector struct {
	log *logrus.Logger
}

// NewInspector returns a new Inspector.
func NewInspector(log *logrus.Logger) *Inspector {
	return &Inspector{log: log}
}

// Inspect returns dimensions, format, size and EXIF properties of the
// image at path. EXIF fields stay zero-valued when the file carries none.
func (i *Inspector) Inspect(path string) (*FileInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	cfg, format, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("decode image header: %w", err)
	}

	info := &FileInfo{
		Path:      path,
		Format:    format,
		SizeBytes: stat.Size(),
		Width:     cfg.Width,
		Height:    cfg.Height,
	}

	i.readEXIF(path, info)
	return info, nil
}

// readEXIF fills CaptureDate and Orientation when EXIF data is present.
// Absence is not an error; most PNGs and many JPEGs carry none.
func (i *Inspector) readEXIF(path string, info *FileInfo) {
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	x, err := exif.Decode(f)
	if err != nil {
		i.log.WithField("file", path).Debugf("no exif data: %v", err)
		return
	}

	for _, field := range []exif.FieldName{exif.DateTimeOriginal, exif.DateTime} {
		tag, err := x.Get(field)
		if err != nil {
			continue
		}
		value, err := tag.StringVal()
		if err != nil {
			continue
		}
		if date, err := time.Parse("2006:01:02 15:04:05", value); err == nil {
			info.CaptureDate = &date
			break
		}
	}

	if tag, err := x.Get(exif.Orientation); err == nil {
		if orientation, err := tag.Int(0); err == nil {
			info.Orientation = orientation
		}
	}
}
