// Package rastertest writes small synthetic rasters for tests.
package rastertest

import (
	"testing"

	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

// Spec describes a synthetic raster. Zero values give a 1-band Byte GeoTIFF
// with the default geotransform.
type Spec struct {
	Driver       string
	Width        int
	Height       int
	Bands        int
	Type         raster.DataType
	GeoTransform raster.GeoTransform
	Projection   string
	NoData       *float64
	// Fill returns the sample for band b at column x, row y. Nil fills with Value.
	Fill  func(b, x, y int) uint16
	Value uint16
}

// Write creates the raster described by spec at path.
func Write(t testing.TB, path string, spec Spec) string {
	t.Helper()
	if spec.Driver == "" {
		spec.Driver = "GTiff"
	}
	if spec.Bands == 0 {
		spec.Bands = 1
	}
	if spec.Type == 0 {
		spec.Type = raster.Byte
	}
	if spec.GeoTransform == (raster.GeoTransform{}) {
		spec.GeoTransform = raster.DefaultGeoTransform
	}

	drv, err := raster.GetDriver(spec.Driver)
	if err != nil {
		t.Fatalf("rastertest: %v", err)
	}
	ds, err := drv.Create(path, spec.Width, spec.Height, spec.Bands, spec.Type)
	if err != nil {
		t.Fatalf("rastertest: create %s: %v", path, err)
	}
	if err := ds.SetGeoTransform(spec.GeoTransform); err != nil {
		t.Fatalf("rastertest: %v", err)
	}
	if err := ds.SetProjection(spec.Projection); err != nil {
		t.Fatalf("rastertest: %v", err)
	}
	if spec.NoData != nil {
		if err := ds.SetNoData(*spec.NoData); err != nil {
			t.Fatalf("rastertest: %v", err)
		}
	}
	for b := 0; b < spec.Bands; b++ {
		data := make([]uint16, spec.Width*spec.Height)
		for y := 0; y < spec.Height; y++ {
			for x := 0; x < spec.Width; x++ {
				v := spec.Value
				if spec.Fill != nil {
					v = spec.Fill(b, x, y)
				}
				data[y*spec.Width+x] = v
			}
		}
		if err := ds.Band(b).Write(0, 0, spec.Width, spec.Height, data); err != nil {
			t.Fatalf("rastertest: %v", err)
		}
	}
	if err := ds.Close(); err != nil {
		t.Fatalf("rastertest: write %s: %v", path, err)
	}
	return path
}

// Read returns every band of the raster at path.
func Read(t testing.TB, path string) (*raster.Dataset, [][]uint16) {
	t.Helper()
	ds, err := raster.Open(path)
	if err != nil {
		t.Fatalf("rastertest: open %s: %v", path, err)
	}
	t.Cleanup(func() { _ = ds.Close() })
	bands := make([][]uint16, ds.BandCount())
	for i := range bands {
		bands[i], err = ds.Band(i).ReadAll()
		if err != nil {
			t.Fatalf("rastertest: read band %d: %v", i, err)
		}
	}
	return ds, bands
}

// Float returns a pointer to v, for Spec.NoData.
func Float(v float64) *float64 { return &v }
