// Package preflight checks that a machine can run a mosaicwatch session
// before one is started.
//
// The package validates:
//   - The watched directory exists and can be listed
//   - Free disk space next to the output mosaic (minimum 100MB)
//   - Write permissions in the output and data directories
//   - The output mosaic is not locked by another session
//   - The project database opens
//   - File descriptor and inotify limits
//
// Use the Checker type to run all validations:
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, preflight.Target{WatchedDir: dir, OutputPath: out})
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
