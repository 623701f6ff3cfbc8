// Package logging sets up structured JSON logging for mosaicwatch.
//
// Logs always go to a size-rotated file under ~/.mosaicwatch/logs/. They are
// mirrored to stderr only when no full-screen map view or MCP stdio session
// owns the terminal.
package logging
