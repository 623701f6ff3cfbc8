package preflight

import (
	"context"
	"fmt"

	"github.com/gofrs/flock"

	"github.com/Aman-CERP/mosaicwatch/internal/merge"
	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

// CheckOutputLock checks that no other process is writing the output mosaic.
func (c *Checker) CheckOutputLock(output string) CheckResult {
	result := CheckResult{
		Name:     "output_lock",
		Required: true,
	}

	fl := flock.New(merge.LockPath(output))
	acquired, err := fl.TryLock()
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot lock %s: %v", output, err)
		return result
	}
	if !acquired {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("%s is being written by another process", output)
		result.Details = "Stop the other mosaicwatch session or choose a different output path"
		return result
	}
	_ = fl.Unlock()

	result.Status = StatusPass
	result.Message = "free"
	return result
}

// CheckDatabase opens the project database and lists its sessions.
func (c *Checker) CheckDatabase(ctx context.Context, path string) CheckResult {
	result := CheckResult{
		Name:     "project_db",
		Required: true,
	}

	s, err := store.Open(path)
	if err != nil {
		result.Status = StatusFail
		result.Message = err.Error()
		return result
	}
	defer func() { _ = s.Close() }()

	sessions, err := s.ListSessions(ctx, 0)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read %s: %v", path, err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%d recorded session(s)", len(sessions))
	result.Details = path
	return result
}
