// Package metadata handles EXIF preservation and the Software tag marker
// that identifies outputs produced by this tool.
package metadata

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/barasher/go-exiftool"
)

// SoftwareMark is stamped into the EXIF Software tag of reduced outputs.
const SoftwareMark = "ImageSizeReducer"

// HasReducerMark reports whether the file's EXIF Software tag marks it as
// produced by this tool. Requires the exiftool binary; callers should
// treat errors as "unknown" and fall back to name-based checks.
func HasReducerMark(path string) (bool, error) {
	et, err := exiftool.NewExiftool()
	if err != nil {
		return false, fmt.Errorf("exiftool init: %w", err)
	}
	defer et.Close()

	metas := et.ExtractMetadata(path)
	if len(metas) == 0 {
		return false, nil
	}
	if metas[0].Err != nil {
		return false, metas[0].Err
	}
	if sw, ok := metas[0].Fields["Software"].(string); ok && strings.Contains(sw, SoftwareMark) {
		return true, nil
	}
	return false, nil
}

// CopyTagsAndMark copies EXIF tags from src onto dst and stamps the
// Software tag, using the external exiftool binary. The re-encode path
// strips metadata, so this runs after the output is written.
func CopyTagsAndMark(src, dst string) error {
	if err := exec.Command("exiftool", "-TagsFromFile", src, "-overwrite_original", dst).Run(); err != nil {
		return fmt.Errorf("exiftool tag copy failed: %w", err)
	}
	if err := exec.Command("exiftool", "-overwrite_original", "-Software="+SoftwareMark, dst).Run(); err != nil {
		return fmt.Errorf("exiftool mark failed: %w", err)
	}
	return nil
}
