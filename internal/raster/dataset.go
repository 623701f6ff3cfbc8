package raster

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// pixels is the decoded content of a raster. Once shared through the cache
// it is never mutated.
type pixels struct {
	width, height int
	dtype         DataType
	bands         [][]uint16
	geo           GeoTransform
	projection    string
	noData        float64
	hasNoData     bool
}

// Dataset is an open raster. Datasets returned by Open are read-only;
// datasets returned by Driver.Create buffer writes until Flush or Close.
type Dataset struct {
	path     string
	driver   *Driver
	writable bool

	mu     sync.Mutex
	px     *pixels
	dirty  bool
	closed bool
}

// Path returns the file the dataset was opened from or will be written to.
func (d *Dataset) Path() string { return d.path }

// Width returns the raster width in pixels.
func (d *Dataset) Width() int { return d.px.width }

// Height returns the raster height in pixels.
func (d *Dataset) Height() int { return d.px.height }

// BandCount returns the number of bands.
func (d *Dataset) BandCount() int { return len(d.px.bands) }

// DataType returns the sample type shared by all bands.
func (d *Dataset) DataType() DataType { return d.px.dtype }

// GeoTransform returns the affine pixel-to-georeferenced transform.
func (d *Dataset) GeoTransform() GeoTransform { return d.px.geo }

// Projection returns "EPSG:n", a WKT string, or "" when unknown.
func (d *Dataset) Projection() string { return d.px.projection }

// NoData returns the nodata value, if one is set.
func (d *Dataset) NoData() (float64, bool) { return d.px.noData, d.px.hasNoData }

// Bounds returns the georeferenced extent.
func (d *Dataset) Bounds() Bounds { return d.px.geo.Bounds(d.px.width, d.px.height) }

// SetGeoTransform sets the transform of a writable dataset.
func (d *Dataset) SetGeoTransform(gt GeoTransform) error {
	return d.mutate(func(p *pixels) { p.geo = gt })
}

// SetProjection sets the projection of a writable dataset.
func (d *Dataset) SetProjection(projection string) error {
	return d.mutate(func(p *pixels) { p.projection = projection })
}

// SetNoData sets the nodata value of a writable dataset.
func (d *Dataset) SetNoData(v float64) error {
	return d.mutate(func(p *pixels) { p.noData, p.hasNoData = v, true })
}

func (d *Dataset) mutate(fn func(p *pixels)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return fmt.Errorf("dataset %s is closed", d.path)
	}
	if !d.writable {
		return fmt.Errorf("dataset %s is read-only", d.path)
	}
	fn(d.px)
	d.dirty = true
	return nil
}

// Band returns band i (0-based) or nil when i is out of range.
func (d *Dataset) Band(i int) *Band {
	if i < 0 || i >= len(d.px.bands) {
		return nil
	}
	return &Band{ds: d, index: i}
}

// Flush writes buffered changes of a writable dataset to disk.
func (d *Dataset) Flush() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flushLocked()
}

func (d *Dataset) flushLocked() error {
	if !d.writable || !d.dirty {
		return nil
	}
	if err := d.driver.write(d.path, d.px); err != nil {
		return mwerrors.MergeError(mwerrors.ErrCodeWriteFailed,
			fmt.Sprintf("failed to write %s", filepath.Base(d.path)), d.path, err)
	}
	d.dirty = false
	return nil
}

// Close flushes pending writes and releases the dataset. Closing twice is a no-op.
func (d *Dataset) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	err := d.flushLocked()
	d.closed = true
	return err
}

// Band is a view of one band of a dataset.
type Band struct {
	ds    *Dataset
	index int
}

// ReadAll returns a copy of the band's samples in row-major order.
func (b *Band) ReadAll() ([]uint16, error) {
	b.ds.mu.Lock()
	defer b.ds.mu.Unlock()
	if b.ds.closed {
		return nil, fmt.Errorf("dataset %s is closed", b.ds.path)
	}
	src := b.ds.px.bands[b.index]
	out := make([]uint16, len(src))
	copy(out, src)
	return out, nil
}

// At returns the sample at column x, row y. The caller guarantees bounds.
func (b *Band) At(x, y int) uint16 {
	return b.ds.px.bands[b.index][y*b.ds.px.width+x]
}

// Write stores a width x height block of samples with its top-left corner at
// (xoff, yoff). Parts of the block outside the raster are clipped and
// samples wider than the data type are clamped.
func (b *Band) Write(xoff, yoff, width, height int, data []uint16) error {
	if len(data) < width*height {
		return fmt.Errorf("band write: %d samples for a %dx%d block", len(data), width, height)
	}
	return b.ds.mutate(func(p *pixels) {
		dst := p.bands[b.index]
		maxV := p.dtype.MaxValue()
		for y := 0; y < height; y++ {
			ty := yoff + y
			if ty < 0 || ty >= p.height {
				continue
			}
			for x := 0; x < width; x++ {
				tx := xoff + x
				if tx < 0 || tx >= p.width {
					continue
				}
				v := data[y*width+x]
				if v > maxV {
					v = maxV
				}
				dst[ty*p.width+tx] = v
			}
		}
	})
}

// Fill sets every sample of the band to v.
func (b *Band) Fill(v uint16) error {
	return b.ds.mutate(func(p *pixels) {
		dst := p.bands[b.index]
		for i := range dst {
			dst[i] = v
		}
	})
}

// Flush writes the owning dataset.
func (b *Band) Flush() error {
	return b.ds.Flush()
}

// fileExists reports whether path names a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
