// Package watcher detects raster tiles arriving in a watched directory.
//
// Two detectors share the Detector interface:
//   - PollingDetector lists the directory on every call and returns the
//     files not returned before (the seen-set grows for the life of the
//     detector).
//   - EventDetector subscribes to fsnotify events on the directory
//     (non-recursive) and returns each settled create or write once.
//     Bursts are coalesced by the Debouncer.
//
// Both filter by extension (case-insensitive), by exclusion patterns from
// Options and the directory's .mosaicwatchignore file, and never report the
// session's own output mosaic or its sidecars.
//
// A tile that is still being written when it is detected may be read
// partially. Neither detector resolves that race beyond debouncing.
//
// Usage:
//
//	d, err := watcher.New(watcher.StrategyAuto, "/data/incoming", watcher.Options{
//	    ExcludePaths: []string{"/data/incoming/mosaic.tif"},
//	})
//	if err != nil {
//	    return err
//	}
//	defer d.Close()
//
//	paths, err := d.DetectNew(ctx)
package watcher
