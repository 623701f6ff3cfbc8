package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

type overwriteMerger struct {
	opts Options
}

// Merge writes an output sized to the larger of existing and the newest tile,
// with existing's geotransform and projection. Band i of the output is band i
// of the newest tile, written at the origin; the rest of the output is zero.
// The newest tile is the last readable entry of tiles.
func (m *overwriteMerger) Merge(ctx context.Context, existing string, tiles []string, output string) (string, error) {
	log := m.opts.Logger
	if len(tiles) == 0 {
		return "", noReadableTiles(tiles, nil)
	}
	drv, err := raster.GetDriver(m.opts.Driver)
	if err != nil {
		return "", err
	}
	unlock, err := lockOutput(output)
	if err != nil {
		return "", err
	}
	defer unlock()

	base, err := m.opts.openExisting(existing)
	if err != nil {
		return "", err
	}
	defer func() { _ = base.Close() }()

	var newest *raster.Dataset
	var skipped []error
	for i := len(tiles) - 1; i >= 0; i-- {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ds, err := m.opts.open(tiles[i])
		if err != nil {
			log.Warn("skipping unreadable tile", slog.String("path", tiles[i]), slog.String("error", err.Error()))
			skipped = append(skipped, err)
			continue
		}
		newest = ds
		if i > 0 {
			log.Debug("overwrite policy uses the newest tile only",
				slog.String("newest", tiles[i]), slog.Int("ignored", i))
		}
		break
	}
	if newest == nil {
		return "", noReadableTiles(tiles, errors.Join(skipped...))
	}
	defer func() { _ = newest.Close() }()

	nb := base.BandCount()
	if newest.BandCount() < nb {
		return "", mwerrors.MergeError(mwerrors.ErrCodeBandMismatch,
			fmt.Sprintf("tile has %d bands, existing raster has %d", newest.BandCount(), nb),
			newest.Path(), nil)
	}

	width := max(base.Width(), newest.Width())
	height := max(base.Height(), newest.Height())
	out, err := drv.Create(output, width, height, nb, raster.Widest(base.DataType(), newest.DataType()))
	if err != nil {
		return "", err
	}
	if err := out.SetGeoTransform(base.GeoTransform()); err != nil {
		return "", err
	}
	if err := out.SetProjection(base.Projection()); err != nil {
		return "", err
	}

	for b := 0; b < nb; b++ {
		data, err := newest.Band(b).ReadAll()
		if err != nil {
			return "", mwerrors.MergeError(mwerrors.ErrCodeSourceNotFound,
				fmt.Sprintf("cannot read band %d of %s", b+1, newest.Path()), newest.Path(), err)
		}
		if err := out.Band(b).Write(0, 0, newest.Width(), newest.Height(), data); err != nil {
			return "", err
		}
	}

	log.Debug("overwrite merge complete",
		slog.String("output", output),
		slog.String("newest", newest.Path()),
		slog.Int("width", width),
		slog.Int("height", height))
	return m.opts.finish(out, output)
}
