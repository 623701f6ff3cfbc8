package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"
)

// MinFreeSpace is required next to the output mosaic even before it exists.
const MinFreeSpace = 100 << 20

// CheckDiskSpace checks the filesystem holding output. Every merge writes
// the new mosaic to a temp file beside the old one and renames it, so twice
// the current mosaic must fit as well.
func (c *Checker) CheckDiskSpace(output string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	dir := filepath.Dir(output)
	var fs syscall.Statfs_t
	if err := syscall.Statfs(dir, &fs); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot stat filesystem of %s: %v", dir, err)
		return result
	}

	free := fs.Bavail * uint64(fs.Bsize)
	need := uint64(MinFreeSpace)
	if info, err := os.Stat(output); err == nil && uint64(2*info.Size()) > need {
		need = uint64(2 * info.Size())
	}

	result.Message = fmt.Sprintf("%s free, %s needed", sizeString(free), sizeString(need))
	result.Status = StatusPass
	if free < need {
		result.Status = StatusFail
		result.Details = "Free space on " + dir + " or write the mosaic elsewhere"
	}
	return result
}

func sizeString(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit && exp < 3; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGT"[exp])
}
