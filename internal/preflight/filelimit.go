package preflight

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
)

// MinFileDescriptors is the minimum recommended file descriptor limit.
const MinFileDescriptors = 1024

// MinInotifyWatches is the minimum recommended inotify watch limit.
const MinInotifyWatches = 8192

// inotifyWatchesPath is a variable so tests can point it at a fixture.
var inotifyWatchesPath = "/proc/sys/fs/inotify/max_user_watches"

// CheckFileDescriptors checks if the file descriptor limit is sufficient.
// A low limit only warns: one session keeps few files open at a time.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{
		Name:     "file_descriptors",
		Required: false,
	}

	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("failed to check file descriptor limit: %v", err)
		return result
	}

	currentLimit := rLimit.Cur
	result.Message = fmt.Sprintf("%d (minimum: %d)", currentLimit, MinFileDescriptors)

	if currentLimit < MinFileDescriptors {
		result.Status = StatusWarn
		result.Details = "Run 'ulimit -n 10240' to increase the limit"
		return result
	}

	result.Status = StatusPass
	return result
}

// CheckInotifyWatches checks the kernel watch limit the events strategy
// depends on. Systems without inotify pass; fsnotify uses another backend there.
func (c *Checker) CheckInotifyWatches() CheckResult {
	result := CheckResult{
		Name:     "inotify_watches",
		Required: false,
	}

	data, err := os.ReadFile(inotifyWatchesPath)
	if err != nil {
		result.Status = StatusPass
		result.Message = "not applicable on this system"
		return result
	}
	limit, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("unreadable limit %q", strings.TrimSpace(string(data)))
		return result
	}

	result.Message = fmt.Sprintf("%d (minimum: %d)", limit, MinInotifyWatches)
	if limit < MinInotifyWatches {
		result.Status = StatusWarn
		result.Details = "Raise fs.inotify.max_user_watches or use --strategy polling"
		return result
	}

	result.Status = StatusPass
	return result
}
