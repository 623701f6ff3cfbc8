package merge

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// LockPath returns the lock file guarding writes to output.
// It is hidden so folder watchers skip it.
func LockPath(output string) string {
	return filepath.Join(filepath.Dir(output), "."+filepath.Base(output)+".lock")
}

// lockOutput takes a cross-process lock on output so two sessions cannot
// write the same mosaic. It does not wait: a held lock is an error.
func lockOutput(output string) (func(), error) {
	fl := flock.New(LockPath(output))
	acquired, err := fl.TryLock()
	if err != nil {
		return nil, mwerrors.MergeError(mwerrors.ErrCodeWriteFailed,
			fmt.Sprintf("cannot lock output %s", output), output, err)
	}
	if !acquired {
		return nil, mwerrors.New(mwerrors.ErrCodeFileLocked,
			fmt.Sprintf("output %s is being written by another process", output), nil).
			WithPath(output).
			WithSuggestion("Stop the other mosaicwatch session or choose a different output path")
	}
	return func() { _ = fl.Unlock() }, nil
}
