package raster

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// Driver creates rasters in one output format.
type Driver struct {
	// Name is the GDAL-style short name ("GTiff", "PNG").
	Name string
	// Extension is the conventional file extension, with dot.
	Extension string

	encode   func(w io.Writer, p *pixels) error
	sidecars func(path string, p *pixels) error
}

var drivers = map[string]*Driver{}

// register adds a driver under its case-insensitive name.
func register(d *Driver) {
	drivers[strings.ToLower(d.Name)] = d
}

func init() {
	register(&Driver{Name: "GTiff", Extension: ".tif", encode: encodeGeoTIFF, sidecars: writePrjSidecar})
	register(&Driver{Name: "PNG", Extension: ".png", encode: encodePNG, sidecars: writePNGSidecars})
}

// GetDriver looks up a driver by name.
func GetDriver(name string) (*Driver, error) {
	if d, ok := drivers[strings.ToLower(name)]; ok {
		return d, nil
	}
	return nil, mwerrors.New(mwerrors.ErrCodeDriverUnavailable,
		fmt.Sprintf("raster driver %q is not available", name), nil).
		WithDetail("driver", name).
		WithSuggestion("Available drivers: " + strings.Join(DriverNames(), ", "))
}

// DriverNames returns the registered driver names, sorted.
func DriverNames() []string {
	names := make([]string, 0, len(drivers))
	for _, d := range drivers {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return names
}

// Create returns a writable, zero-filled dataset that is written to path on
// Flush or Close. Supported band counts are 1 (gray), 3 (RGB) and 4 (RGBA).
func (d *Driver) Create(path string, width, height, bands int, dtype DataType) (*Dataset, error) {
	if width <= 0 || height <= 0 {
		return nil, mwerrors.MergeError(mwerrors.ErrCodeDriverUnavailable,
			fmt.Sprintf("%s cannot create a %dx%d raster", d.Name, width, height), path, nil)
	}
	if bands != 1 && bands != 3 && bands != 4 {
		return nil, mwerrors.MergeError(mwerrors.ErrCodeDriverUnavailable,
			fmt.Sprintf("%s cannot create a raster with %d bands", d.Name, bands), path, nil)
	}
	if dtype != Byte && dtype != UInt16 {
		return nil, mwerrors.MergeError(mwerrors.ErrCodeDriverUnavailable,
			fmt.Sprintf("%s does not support %s", d.Name, dtype), path, nil)
	}

	px := &pixels{
		width:  width,
		height: height,
		dtype:  dtype,
		bands:  make([][]uint16, bands),
		geo:    DefaultGeoTransform,
	}
	for i := range px.bands {
		px.bands[i] = make([]uint16, width*height)
	}
	return &Dataset{path: path, driver: d, writable: true, px: px, dirty: true}, nil
}

// write encodes p into a temporary file next to path and renames it into
// place, then writes any sidecar files.
func (d *Driver) write(path string, p *pixels) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	bw := bufio.NewWriterSize(tmp, 1<<20)
	if err := d.encode(bw, p); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to encode %s: %w", d.Name, err)
	}
	if err := bw.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to move raster into place: %w", err)
	}
	if d.sidecars != nil {
		if err := d.sidecars(path, p); err != nil {
			return fmt.Errorf("failed to write sidecar files: %w", err)
		}
	}
	return nil
}
