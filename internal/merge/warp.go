package merge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

type warpMerger struct {
	opts Options
}

// source is an input decoded for painting.
type source struct {
	ds    *raster.Dataset
	bands [][]uint16
}

func (m *warpMerger) Merge(ctx context.Context, existing string, tiles []string, output string) (string, error) {
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
	opened := []*raster.Dataset{base}
	defer func() { closeAll(opened) }()

	if !base.GeoTransform().IsNorthUp() {
		return "", mwerrors.MergeError(mwerrors.ErrCodeUnsupportedTransform,
			"existing raster has a rotated geotransform", existing, nil)
	}

	inputs := []*raster.Dataset{base}
	var skipped []error
	for _, path := range tiles {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ds, err := m.opts.open(path)
		if err != nil {
			log.Warn("skipping unreadable tile", slog.String("path", path), slog.String("error", err.Error()))
			skipped = append(skipped, err)
			continue
		}
		opened = append(opened, ds)
		if reason := incompatible(base, ds); reason != nil {
			log.Warn("skipping tile", slog.String("path", path), slog.String("error", reason.Error()))
			skipped = append(skipped, reason)
			continue
		}
		inputs = append(inputs, ds)
	}
	if len(inputs) == 1 {
		return "", noReadableTiles(tiles, errors.Join(skipped...))
	}

	// Output grid: union extent at the existing raster's resolution.
	bgt := base.GeoTransform()
	extent := base.Bounds()
	for _, ds := range inputs[1:] {
		extent = extent.Union(ds.Bounds())
	}
	resX, resY := bgt[1], bgt[5]
	width := int(math.Ceil((extent.MaxX-extent.MinX)/math.Abs(resX) - 1e-6))
	height := int(math.Ceil((extent.MaxY-extent.MinY)/math.Abs(resY) - 1e-6))
	gt := raster.GeoTransform{extent.MinX, resX, 0, extent.MaxY, 0, resY}
	if resX < 0 {
		gt[0] = extent.MaxX
	}
	if resY > 0 {
		gt[3] = extent.MinY
	}

	nb := base.BandCount()
	out, err := drv.Create(output, width, height, nb, base.DataType())
	if err != nil {
		return "", err
	}
	if err := out.SetGeoTransform(gt); err != nil {
		return "", err
	}
	projection := base.Projection()
	for _, ds := range inputs[1:] {
		if projection == "" {
			projection = ds.Projection()
		}
	}
	if err := out.SetProjection(projection); err != nil {
		return "", err
	}

	var fill uint16
	if nd, ok := m.outputNoData(base); ok {
		fill = clampSample(nd, base.DataType())
		if err := out.SetNoData(nd); err != nil {
			return "", err
		}
	}
	mosaic := make([][]uint16, nb)
	for b := range mosaic {
		mosaic[b] = make([]uint16, width*height)
		if fill != 0 {
			for i := range mosaic[b] {
				mosaic[b][i] = fill
			}
		}
	}

	for _, ds := range inputs {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		src, err := decodeSource(ds)
		if err != nil {
			return "", mwerrors.MergeError(mwerrors.ErrCodeSourceNotFound,
				fmt.Sprintf("cannot read %s", ds.Path()), ds.Path(), err)
		}
		if !paint(mosaic, gt, width, height, base.DataType().MaxValue(), src) {
			log.Warn("tile not painted, geotransform cannot be inverted",
				slog.String("path", ds.Path()))
		}
	}

	for b := 0; b < nb; b++ {
		if err := out.Band(b).Write(0, 0, width, height, mosaic[b]); err != nil {
			return "", err
		}
	}

	log.Debug("warp merge complete",
		slog.String("output", output),
		slog.Int("inputs", len(inputs)),
		slog.Int("skipped", len(skipped)),
		slog.Int("width", width),
		slog.Int("height", height))
	return m.opts.finish(out, output)
}

// outputNoData returns the configured override, else the existing raster's nodata.
func (m *warpMerger) outputNoData(base *raster.Dataset) (float64, bool) {
	if m.opts.NoData != nil {
		return *m.opts.NoData, true
	}
	return base.NoData()
}

// incompatible explains why a tile cannot be painted onto base, or returns nil.
func incompatible(base, tile *raster.Dataset) error {
	if !tile.GeoTransform().IsNorthUp() {
		return mwerrors.MergeError(mwerrors.ErrCodeUnsupportedTransform,
			"tile has a rotated geotransform", tile.Path(), nil)
	}
	if !raster.SameProjection(base.Projection(), tile.Projection()) {
		return mwerrors.MergeError(mwerrors.ErrCodeProjectionMismatch,
			fmt.Sprintf("tile projection %s differs from %s", tile.Projection(), base.Projection()),
			tile.Path(), nil)
	}
	return nil
}

func decodeSource(ds *raster.Dataset) (*source, error) {
	src := &source{ds: ds, bands: make([][]uint16, ds.BandCount())}
	for b := range src.bands {
		data, err := ds.Band(b).ReadAll()
		if err != nil {
			return nil, err
		}
		src.bands[b] = data
	}
	return src, nil
}

// paint samples src onto the output grid, nearest-neighbour at pixel centres.
// Only bands present in both are written. A source pixel whose every band
// equals the source nodata value is left unpainted. It returns false without
// painting when the source transform cannot be inverted.
func paint(mosaic [][]uint16, gt raster.GeoTransform, width, height int, maxV uint16, src *source) bool {
	sgt := src.ds.GeoTransform()
	if !sgt.Invertible() {
		return false
	}
	sw, sh := src.ds.Width(), src.ds.Height()
	nb := len(mosaic)
	if len(src.bands) < nb {
		nb = len(src.bands)
	}
	noData, hasNoData := src.ds.NoData()
	ndSample := clampSample(noData, src.ds.DataType())

	// Restrict the loop to the output window covered by the source.
	sb := src.ds.Bounds()
	x0, y0, _ := gt.GeoToPixel(sb.MinX, sb.MaxY)
	x1, y1, _ := gt.GeoToPixel(sb.MaxX, sb.MinY)
	colMin := clampInt(int(math.Floor(math.Min(x0, x1))), 0, width)
	colMax := clampInt(int(math.Ceil(math.Max(x0, x1))), 0, width)
	rowMin := clampInt(int(math.Floor(math.Min(y0, y1))), 0, height)
	rowMax := clampInt(int(math.Ceil(math.Max(y0, y1))), 0, height)

	for oy := rowMin; oy < rowMax; oy++ {
		for ox := colMin; ox < colMax; ox++ {
			x, y := gt.PixelToGeo(float64(ox)+0.5, float64(oy)+0.5)
			px, py, _ := sgt.GeoToPixel(x, y)
			sx, sy := int(math.Floor(px)), int(math.Floor(py))
			if sx < 0 || sy < 0 || sx >= sw || sy >= sh {
				continue
			}
			si := sy*sw + sx
			if hasNoData && allEqual(src.bands, si, ndSample) {
				continue
			}
			oi := oy*width + ox
			for b := 0; b < nb; b++ {
				v := src.bands[b][si]
				if v > maxV {
					v = maxV
				}
				mosaic[b][oi] = v
			}
		}
	}
	return true
}

func allEqual(bands [][]uint16, i int, v uint16) bool {
	for _, band := range bands {
		if band[i] != v {
			return false
		}
	}
	return true
}

func clampSample(v float64, dt raster.DataType) uint16 {
	switch {
	case math.IsNaN(v) || v <= 0:
		return 0
	case v >= float64(dt.MaxValue()):
		return dt.MaxValue()
	default:
		return uint16(math.Round(v))
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
