package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with Error
	err := New(ErrCodeFileNotFound, "file not found: tile.tif", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, err)
	assert.Equal(t, originalErr, errors.Unwrap(err))
	assert.True(t, errors.Is(err, originalErr))
}

func TestError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigNotFound,
			message:  "config file not found",
			expected: "[ERR_101_CONFIG_NOT_FOUND] config file not found",
		},
		{
			name:     "merge error",
			code:     ErrCodeSourceNotFound,
			message:  "cannot open base.tif",
			expected: "[ERR_501_SOURCE_NOT_FOUND] cannot open base.tif",
		},
		{
			name:     "watch error",
			code:     ErrCodeWatchDirGone,
			message:  "watched folder removed",
			expected: "[ERR_301_WATCH_DIR_GONE] watched folder removed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestError_Is_MatchesByCode(t *testing.T) {
	// Given: two errors with same code
	err1 := New(ErrCodeSourceNotFound, "a.tif", nil)
	err2 := New(ErrCodeSourceNotFound, "b.tif", nil)

	// Then: they match by code
	assert.True(t, errors.Is(err1, err2))
	assert.False(t, errors.Is(err1, New(ErrCodeWriteFailed, "", nil)))
}

func TestError_WithPath_RecordsOffendingPath(t *testing.T) {
	err := ValidationError(ErrCodeBaseRasterMissing, "base raster does not exist", "/data/base.tif")

	assert.Equal(t, "/data/base.tif", err.Path())
	assert.Equal(t, CategoryValidation, err.Category)
	assert.Equal(t, "[ERR_403_BASE_RASTER_MISSING] base raster does not exist: /data/base.tif", err.Error())
}

func TestError_CategoryFromCode(t *testing.T) {
	tests := []struct {
		code         string
		wantCategory Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeFileNotFound, CategoryIO},
		{ErrCodeWatchDirGone, CategoryWatch},
		{ErrCodeWatchDirNotFound, CategoryValidation},
		{ErrCodeDriverUnavailable, CategoryMerge},
		{ErrCodeNoReadableTiles, CategoryMerge},
		{ErrCodeLayerInvalid, CategoryLayer},
		{ErrCodeInternal, CategoryInternal},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "test message", nil)
			assert.Equal(t, tt.wantCategory, err.Category)
		})
	}
}

func TestError_SeverityFromCode(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeWatchDirGone, "", nil).Severity)
	assert.Equal(t, SeverityWarning, New(ErrCodeLayerInvalid, "", nil).Severity)
	assert.Equal(t, SeverityError, New(ErrCodeWriteFailed, "", nil).Severity)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestAs_FindsWrappedError(t *testing.T) {
	// Given: a coded error wrapped with fmt.Errorf
	inner := MergeError(ErrCodeWriteFailed, "write failed", "/out/m.tif", nil)
	outer := fmt.Errorf("batch 3: %w", inner)

	// When: extracting
	got, ok := As(outer)

	// Then: the coded error is found through the chain
	require.True(t, ok)
	assert.Equal(t, ErrCodeWriteFailed, got.Code)
	assert.Equal(t, ErrCodeWriteFailed, GetCode(outer))
	assert.True(t, IsCategory(outer, CategoryMerge))
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(WatchError(ErrCodeWatchDirGone, "gone", "/w", nil)))
	assert.False(t, IsFatal(errors.New("plain")))
	assert.False(t, IsFatal(nil))
}
