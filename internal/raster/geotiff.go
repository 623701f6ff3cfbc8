package raster

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// TIFF tags and types used for georeferencing.
const (
	tagImageWidth          = 256
	tagImageLength         = 257
	tagBitsPerSample       = 258
	tagCompression         = 259
	tagPhotometric         = 262
	tagStripOffsets        = 273
	tagSamplesPerPixel     = 277
	tagRowsPerStrip        = 278
	tagStripByteCounts     = 279
	tagPlanarConfiguration = 284
	tagSoftware            = 305
	tagExtraSamples        = 338
	tagSampleFormat        = 339
	tagModelPixelScale     = 33550
	tagModelTiepoint       = 33922
	tagModelTransformation = 34264
	tagGeoKeyDirectory     = 34735
	tagGeoDoubleParams     = 34736
	tagGeoASCIIParams      = 34737
	tagGDALNoData          = 42113

	typeByte   = 1
	typeASCII  = 2
	typeShort  = 3
	typeLong   = 4
	typeDouble = 12

	keyGTModelType       = 1024
	keyGTRasterType      = 1025
	keyGeographicType    = 2048
	keyProjectedCSType   = 3072
	rasterPixelIsPoint   = 2
	modelTypeProjected   = 1
	modelTypeGeographic  = 2
	userDefinedGeoKeyVal = 32767
)

// tiffTags holds the first-IFD tags mosaicwatch cares about.
type tiffTags struct {
	samplesPerPixel int
	pixelScale      []float64
	tiepoint        []float64
	transformation  []float64
	geoKeys         []uint16
	noData          string
}

var errNotTIFF = errors.New("not a classic TIFF file")

func typeSize(t uint16) int {
	switch t {
	case typeByte, typeASCII, 6, 7:
		return 1
	case typeShort, 8:
		return 2
	case typeLong, 9, 11:
		return 4
	case 5, 10, typeDouble:
		return 8
	default:
		return 0
	}
}

// readTIFFTags walks the first IFD of a classic (non-Big) TIFF.
func readTIFFTags(data []byte) (*tiffTags, error) {
	if len(data) < 8 {
		return nil, errNotTIFF
	}
	var bo binary.ByteOrder
	switch string(data[:2]) {
	case "II":
		bo = binary.LittleEndian
	case "MM":
		bo = binary.BigEndian
	default:
		return nil, errNotTIFF
	}
	if bo.Uint16(data[2:4]) != 42 {
		return nil, errNotTIFF
	}

	off := int(bo.Uint32(data[4:8]))
	if off+2 > len(data) {
		return nil, fmt.Errorf("IFD offset %d out of range", off)
	}
	n := int(bo.Uint16(data[off:]))
	if off+2+12*n > len(data) {
		return nil, fmt.Errorf("IFD with %d entries is truncated", n)
	}

	tags := &tiffTags{samplesPerPixel: 1}
	for i := 0; i < n; i++ {
		entry := data[off+2+12*i : off+2+12*(i+1)]
		tag := bo.Uint16(entry[0:2])
		typ := bo.Uint16(entry[2:4])
		count := int(bo.Uint32(entry[4:8]))

		size := typeSize(typ) * count
		if size <= 0 {
			continue
		}
		var raw []byte
		if size <= 4 {
			raw = entry[8 : 8+size]
		} else {
			vo := int(bo.Uint32(entry[8:12]))
			if vo < 0 || vo+size > len(data) {
				return nil, fmt.Errorf("tag %d value out of range", tag)
			}
			raw = data[vo : vo+size]
		}

		switch tag {
		case tagSamplesPerPixel:
			if v := readUints(bo, typ, raw); len(v) > 0 {
				tags.samplesPerPixel = int(v[0])
			}
		case tagModelPixelScale:
			tags.pixelScale = readDoubles(bo, typ, raw)
		case tagModelTiepoint:
			tags.tiepoint = readDoubles(bo, typ, raw)
		case tagModelTransformation:
			tags.transformation = readDoubles(bo, typ, raw)
		case tagGeoKeyDirectory:
			for _, v := range readUints(bo, typ, raw) {
				tags.geoKeys = append(tags.geoKeys, uint16(v))
			}
		case tagGDALNoData:
			if typ == typeASCII {
				tags.noData = strings.TrimRight(string(raw), "\x00 ")
			}
		}
	}
	return tags, nil
}

func readUints(bo binary.ByteOrder, typ uint16, raw []byte) []uint32 {
	var out []uint32
	switch typ {
	case typeShort:
		for i := 0; i+2 <= len(raw); i += 2 {
			out = append(out, uint32(bo.Uint16(raw[i:])))
		}
	case typeLong:
		for i := 0; i+4 <= len(raw); i += 4 {
			out = append(out, bo.Uint32(raw[i:]))
		}
	case typeByte:
		for _, b := range raw {
			out = append(out, uint32(b))
		}
	}
	return out
}

func readDoubles(bo binary.ByteOrder, typ uint16, raw []byte) []float64 {
	if typ != typeDouble {
		return nil
	}
	out := make([]float64, 0, len(raw)/8)
	for i := 0; i+8 <= len(raw); i += 8 {
		out = append(out, math.Float64frombits(bo.Uint64(raw[i:])))
	}
	return out
}

// geoKey returns the inline value of a GeoKey.
func (t *tiffTags) geoKey(id uint16) (uint16, bool) {
	k := t.geoKeys
	if len(k) < 4 {
		return 0, false
	}
	num := int(k[3])
	for i := 0; i < num && 4+4*i+3 < len(k); i++ {
		e := k[4+4*i : 4+4*i+4]
		if e[0] == id && e[1] == 0 {
			return e[3], true
		}
	}
	return 0, false
}

// geoTransform derives the affine transform from the model tags.
func (t *tiffTags) geoTransform() (GeoTransform, bool) {
	var gt GeoTransform
	switch {
	case len(t.transformation) >= 16:
		m := t.transformation
		gt = GeoTransform{m[3], m[0], m[1], m[7], m[4], m[5]}
	case len(t.pixelScale) >= 2 && len(t.tiepoint) >= 6:
		sx, sy := t.pixelScale[0], t.pixelScale[1]
		i, j := t.tiepoint[0], t.tiepoint[1]
		x, y := t.tiepoint[3], t.tiepoint[4]
		gt = GeoTransform{x - i*sx, sx, 0, y + j*sy, 0, -sy}
	default:
		return GeoTransform{}, false
	}
	if rt, ok := t.geoKey(keyGTRasterType); ok && rt == rasterPixelIsPoint {
		gt[0] -= 0.5*gt[1] + 0.5*gt[2]
		gt[3] -= 0.5*gt[4] + 0.5*gt[5]
	}
	return gt, true
}

// projection returns "EPSG:n" from the projected or geographic CRS key.
func (t *tiffTags) projection() string {
	for _, id := range []uint16{keyProjectedCSType, keyGeographicType} {
		if v, ok := t.geoKey(id); ok && v != 0 && v != userDefinedGeoKeyVal {
			return "EPSG:" + strconv.Itoa(int(v))
		}
	}
	return ""
}

// noDataValue parses the GDAL_NODATA tag.
func (t *tiffTags) noDataValue() (float64, bool) {
	if t.noData == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(t.noData, 64)
	if err != nil || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}
