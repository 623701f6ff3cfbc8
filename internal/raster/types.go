package raster

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// DataType is the sample type of every band in a dataset.
type DataType int

const (
	// Byte is an unsigned 8-bit sample.
	Byte DataType = iota + 1
	// UInt16 is an unsigned 16-bit sample.
	UInt16
)

// String returns the GDAL-style name of the type.
func (d DataType) String() string {
	switch d {
	case Byte:
		return "Byte"
	case UInt16:
		return "UInt16"
	default:
		return fmt.Sprintf("DataType(%d)", int(d))
	}
}

// Bits returns the sample width in bits.
func (d DataType) Bits() int {
	if d == UInt16 {
		return 16
	}
	return 8
}

// MaxValue returns the largest representable sample.
func (d DataType) MaxValue() uint16 {
	if d == UInt16 {
		return math.MaxUint16
	}
	return math.MaxUint8
}

// Widest returns the wider of two data types.
func Widest(a, b DataType) DataType {
	if a == UInt16 || b == UInt16 {
		return UInt16
	}
	return Byte
}

// GeoTransform maps pixel/line coordinates to georeferenced coordinates:
//
//	Xgeo = GT[0] + col*GT[1] + row*GT[2]
//	Ygeo = GT[3] + col*GT[4] + row*GT[5]
type GeoTransform [6]float64

// DefaultGeoTransform is used for rasters without georeferencing.
var DefaultGeoTransform = GeoTransform{0, 1, 0, 0, 0, 1}

// IsNorthUp reports whether the transform has no rotation terms.
func (g GeoTransform) IsNorthUp() bool {
	return g[2] == 0 && g[4] == 0 && g[1] != 0 && g[5] != 0
}

// Invertible reports whether georeferenced coordinates can be mapped back
// to pixels.
func (g GeoTransform) Invertible() bool {
	return g[1]*g[5]-g[2]*g[4] != 0
}

// PixelToGeo converts pixel coordinates to georeferenced coordinates.
func (g GeoTransform) PixelToGeo(px, py float64) (float64, float64) {
	return g[0] + px*g[1] + py*g[2], g[3] + px*g[4] + py*g[5]
}

// GeoToPixel converts georeferenced coordinates to pixel coordinates.
// ok is false when the transform is not invertible.
func (g GeoTransform) GeoToPixel(x, y float64) (px, py float64, ok bool) {
	det := g[1]*g[5] - g[2]*g[4]
	if det == 0 {
		return 0, 0, false
	}
	dx, dy := x-g[0], y-g[3]
	px = (dx*g[5] - dy*g[2]) / det
	py = (dy*g[1] - dx*g[4]) / det
	return px, py, true
}

// Bounds is an axis-aligned georeferenced extent.
type Bounds struct {
	MinX float64 `json:"min_x"`
	MinY float64 `json:"min_y"`
	MaxX float64 `json:"max_x"`
	MaxY float64 `json:"max_y"`
}

// Bounds returns the extent covered by a width x height raster.
func (g GeoTransform) Bounds(width, height int) Bounds {
	b := Bounds{MinX: math.Inf(1), MinY: math.Inf(1), MaxX: math.Inf(-1), MaxY: math.Inf(-1)}
	for _, c := range [][2]float64{{0, 0}, {float64(width), 0}, {0, float64(height)}, {float64(width), float64(height)}} {
		x, y := g.PixelToGeo(c[0], c[1])
		b.MinX = math.Min(b.MinX, x)
		b.MaxX = math.Max(b.MaxX, x)
		b.MinY = math.Min(b.MinY, y)
		b.MaxY = math.Max(b.MaxY, y)
	}
	return b
}

// Union returns the smallest extent covering b and o.
func (b Bounds) Union(o Bounds) Bounds {
	return Bounds{
		MinX: math.Min(b.MinX, o.MinX),
		MinY: math.Min(b.MinY, o.MinY),
		MaxX: math.Max(b.MaxX, o.MaxX),
		MaxY: math.Max(b.MaxY, o.MaxY),
	}
}

// EPSGCode extracts n from a projection of the form "EPSG:n".
func EPSGCode(projection string) (int, bool) {
	p := strings.TrimSpace(projection)
	if len(p) < 6 || !strings.EqualFold(p[:5], "EPSG:") {
		return 0, false
	}
	code, err := strconv.Atoi(p[5:])
	if err != nil || code <= 0 {
		return 0, false
	}
	return code, true
}

// SameProjection reports whether two projection strings describe the same
// reference system. An empty projection matches anything.
func SameProjection(a, b string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return true
	}
	if ca, ok := EPSGCode(a); ok {
		cb, ok := EPSGCode(b)
		return ok && ca == cb
	}
	return strings.EqualFold(strings.Join(strings.Fields(a), ""), strings.Join(strings.Fields(b), ""))
}
