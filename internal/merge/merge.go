package merge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

// Policy selects how tiles are combined.
type Policy string

const (
	// PolicyWarp builds a union mosaic of all inputs.
	PolicyWarp Policy = "warp"
	// PolicyOverwrite replaces every band with the newest tile's band.
	PolicyOverwrite Policy = "overwrite"
)

// ParsePolicy converts a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(strings.ToLower(strings.TrimSpace(s))) {
	case PolicyWarp, "":
		return PolicyWarp, nil
	case PolicyOverwrite:
		return PolicyOverwrite, nil
	default:
		return "", mwerrors.New(mwerrors.ErrCodeInvalidInput,
			fmt.Sprintf("unknown merge policy %q", s), nil).
			WithSuggestion("Use 'warp' or 'overwrite'")
	}
}

// Merger merges tiles into an existing raster and writes the result to output.
// It returns the output path on success.
type Merger interface {
	Merge(ctx context.Context, existing string, tiles []string, output string) (string, error)
}

// Options configures a Merger.
type Options struct {
	// Driver is the output format name. Defaults to "GTiff".
	Driver string
	// NoData overrides the output nodata value for the warp policy.
	NoData *float64
	// Cache, if set, is used to open inputs and is invalidated for the output.
	Cache *raster.Cache
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// New returns the Merger for policy.
func New(policy Policy, opts Options) (Merger, error) {
	if opts.Driver == "" {
		opts.Driver = "GTiff"
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if _, err := raster.GetDriver(opts.Driver); err != nil {
		return nil, err
	}
	switch policy {
	case PolicyWarp, "":
		return &warpMerger{opts: opts}, nil
	case PolicyOverwrite:
		return &overwriteMerger{opts: opts}, nil
	default:
		_, err := ParsePolicy(string(policy))
		return nil, err
	}
}

func (o Options) open(path string) (*raster.Dataset, error) {
	return o.Cache.Open(path)
}

// openExisting opens the raster being merged into, mapping any failure to SourceNotFound.
func (o Options) openExisting(path string) (*raster.Dataset, error) {
	ds, err := o.open(path)
	if err != nil {
		return nil, mwerrors.MergeError(mwerrors.ErrCodeSourceNotFound,
			fmt.Sprintf("cannot open existing raster %s", path), path, err)
	}
	return ds, nil
}

// closeAll closes every dataset, ignoring errors from read-only handles.
func closeAll(sets []*raster.Dataset) {
	for _, ds := range sets {
		if ds != nil {
			_ = ds.Close()
		}
	}
}

// finish closes the output (writing it) and drops stale cache entries.
func (o Options) finish(out *raster.Dataset, output string) (string, error) {
	err := out.Close()
	o.Cache.Invalidate(output)
	if err != nil {
		return "", err
	}
	return output, nil
}

func noReadableTiles(tiles []string, cause error) error {
	path := ""
	if len(tiles) > 0 {
		path = tiles[len(tiles)-1]
	}
	return mwerrors.MergeError(mwerrors.ErrCodeNoReadableTiles,
		fmt.Sprintf("none of %d new tiles could be read", len(tiles)), path, cause)
}
