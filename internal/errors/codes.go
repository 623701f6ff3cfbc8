// Package errors provides structured error handling for mosaicwatch.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO errors (file, disk)
//   - 3XX: Watch errors (folder observation)
//   - 4XX: Validation errors
//   - 5XX: Merge errors
//   - 6XX: Layer errors
//   - 9XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file and disk I/O errors.
	CategoryIO Category = "IO"
	// CategoryWatch indicates the watched folder can no longer be observed.
	CategoryWatch Category = "WATCH"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryMerge indicates a raster merge failed.
	CategoryMerge Category = "MERGE"
	// CategoryLayer indicates a layer could not be loaded or displayed.
	CategoryLayer Category = "LAYER"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound   = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid    = "ERR_102_CONFIG_INVALID"
	ErrCodeConfigPermission = "ERR_103_CONFIG_PERMISSION"

	// IO errors (200-299)
	ErrCodeFileNotFound   = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission = "ERR_202_FILE_PERMISSION"
	ErrCodeDiskFull       = "ERR_203_DISK_FULL"
	ErrCodeFileCorrupt    = "ERR_206_FILE_CORRUPT"
	ErrCodeFileLocked     = "ERR_207_FILE_LOCKED"

	// Watch errors (300-399)
	ErrCodeWatchDirGone     = "ERR_301_WATCH_DIR_GONE"
	ErrCodeWatchUnavailable = "ERR_302_WATCH_UNAVAILABLE"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeWatchDirNotFound  = "ERR_402_WATCH_DIR_NOT_FOUND"
	ErrCodeBaseRasterMissing = "ERR_403_BASE_RASTER_MISSING"
	ErrCodeOutputDirMissing  = "ERR_404_OUTPUT_DIR_MISSING"
	ErrCodeInvalidInterval   = "ERR_405_INVALID_INTERVAL"
	ErrCodeInvalidPath       = "ERR_406_INVALID_PATH"

	// Merge errors (500-599)
	ErrCodeSourceNotFound       = "ERR_501_SOURCE_NOT_FOUND"
	ErrCodeDriverUnavailable    = "ERR_502_DRIVER_UNAVAILABLE"
	ErrCodeWriteFailed          = "ERR_503_WRITE_FAILED"
	ErrCodeNoReadableTiles      = "ERR_504_NO_READABLE_TILES"
	ErrCodeBandMismatch         = "ERR_505_BAND_MISMATCH"
	ErrCodeProjectionMismatch   = "ERR_506_PROJECTION_MISMATCH"
	ErrCodeUnsupportedTransform = "ERR_507_UNSUPPORTED_TRANSFORM"

	// Layer errors (600-699)
	ErrCodeLayerInvalid  = "ERR_601_LAYER_INVALID"
	ErrCodeLayerNotFound = "ERR_602_LAYER_NOT_FOUND"

	// Internal errors (900-999)
	ErrCodeInternal = "ERR_901_INTERNAL"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "101" from "ERR_101_CONFIG_NOT_FOUND")
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryWatch
	case '4':
		return CategoryValidation
	case '5':
		return CategoryMerge
	case '6':
		return CategoryLayer
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeDiskFull, ErrCodeWatchDirGone:
		return SeverityFatal
	case ErrCodeLayerInvalid:
		return SeverityWarning
	}
	return SeverityError
}
