package raster

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/Aman-CERP/mosaicwatch/pkg/version"
)

type ifdEntry struct {
	tag   uint16
	typ   uint16
	count uint32
	value []byte
}

func shortEntry(tag uint16, vals ...uint16) ifdEntry {
	b := make([]byte, 2*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint16(b[2*i:], v)
	}
	return ifdEntry{tag: tag, typ: typeShort, count: uint32(len(vals)), value: b}
}

func longEntry(tag uint16, v uint32) ifdEntry {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return ifdEntry{tag: tag, typ: typeLong, count: 1, value: b}
}

func doubleEntry(tag uint16, vals ...float64) ifdEntry {
	b := make([]byte, 8*len(vals))
	for i, v := range vals {
		binary.LittleEndian.PutUint64(b[8*i:], math.Float64bits(v))
	}
	return ifdEntry{tag: tag, typ: typeDouble, count: uint32(len(vals)), value: b}
}

func asciiEntry(tag uint16, s string) ifdEntry {
	b := append([]byte(s), 0)
	return ifdEntry{tag: tag, typ: typeASCII, count: uint32(len(b)), value: b}
}

// geoKeyDirectory builds the GeoKeyDirectory for a projection string.
func geoKeyDirectory(projection string) []uint16 {
	keys := [][4]uint16{}
	code, ok := EPSGCode(projection)
	if ok && code <= math.MaxUint16 {
		if code >= 4000 && code < 5000 {
			keys = append(keys, [4]uint16{keyGTModelType, 0, 1, modelTypeGeographic})
		} else {
			keys = append(keys, [4]uint16{keyGTModelType, 0, 1, modelTypeProjected})
		}
	}
	keys = append(keys, [4]uint16{keyGTRasterType, 0, 1, 1})
	if ok && code <= math.MaxUint16 {
		if code >= 4000 && code < 5000 {
			keys = append(keys, [4]uint16{keyGeographicType, 0, 1, uint16(code)})
		} else {
			keys = append(keys, [4]uint16{keyProjectedCSType, 0, 1, uint16(code)})
		}
	}
	out := []uint16{1, 1, 0, uint16(len(keys))}
	for _, k := range keys {
		out = append(out, k[:]...)
	}
	return out
}

// encodeGeoTIFF writes a little-endian, uncompressed, single-strip,
// pixel-interleaved GeoTIFF. Tags are emitted in ascending order.
func encodeGeoTIFF(w io.Writer, p *pixels) error {
	nb := len(p.bands)
	bps := uint16(p.dtype.Bits())
	bytesPerSample := int(bps) / 8
	stripSize := uint64(p.width) * uint64(p.height) * uint64(nb) * uint64(bytesPerSample)
	if stripSize > math.MaxUint32-1<<20 {
		return fmt.Errorf("raster of %d bytes exceeds the classic TIFF size limit", stripSize)
	}

	bits := make([]uint16, nb)
	formats := make([]uint16, nb)
	for i := range bits {
		bits[i] = bps
		formats[i] = 1
	}
	photometric := uint16(1)
	if nb >= 3 {
		photometric = 2
	}

	entries := []ifdEntry{
		longEntry(tagImageWidth, uint32(p.width)),
		longEntry(tagImageLength, uint32(p.height)),
		shortEntry(tagBitsPerSample, bits...),
		shortEntry(tagCompression, 1),
		shortEntry(tagPhotometric, photometric),
		longEntry(tagStripOffsets, 0), // patched once the layout is known
		shortEntry(tagSamplesPerPixel, uint16(nb)),
		longEntry(tagRowsPerStrip, uint32(p.height)),
		longEntry(tagStripByteCounts, uint32(stripSize)),
		shortEntry(tagPlanarConfiguration, 1),
		asciiEntry(tagSoftware, version.UserAgent()),
	}
	if nb == 4 {
		// Unassociated alpha
		entries = append(entries, shortEntry(tagExtraSamples, 2))
	}
	entries = append(entries, shortEntry(tagSampleFormat, formats...))

	gt := p.geo
	if gt.IsNorthUp() {
		entries = append(entries,
			doubleEntry(tagModelPixelScale, gt[1], -gt[5], 0),
			doubleEntry(tagModelTiepoint, 0, 0, 0, gt[0], gt[3], 0))
	} else {
		entries = append(entries, doubleEntry(tagModelTransformation,
			gt[1], gt[2], 0, gt[0],
			gt[4], gt[5], 0, gt[3],
			0, 0, 0, 0,
			0, 0, 0, 1))
	}
	entries = append(entries, shortEntry(tagGeoKeyDirectory, geoKeyDirectory(p.projection)...))
	if p.hasNoData {
		entries = append(entries, asciiEntry(tagGDALNoData, strconv.FormatFloat(p.noData, 'g', -1, 64)))
	}

	// Layout: header, IFD, out-of-line tag values, pixel strip.
	ifdSize := 2 + 12*len(entries) + 4
	offset := 8 + ifdSize
	valueOffsets := make([]int, len(entries))
	var extra bytes.Buffer
	for i, e := range entries {
		if len(e.value) <= 4 {
			continue
		}
		if (offset+extra.Len())%2 == 1 {
			extra.WriteByte(0)
		}
		valueOffsets[i] = offset + extra.Len()
		extra.Write(e.value)
	}
	if (offset+extra.Len())%2 == 1 {
		extra.WriteByte(0)
	}
	stripOffset := offset + extra.Len()
	for i := range entries {
		if entries[i].tag == tagStripOffsets {
			binary.LittleEndian.PutUint32(entries[i].value, uint32(stripOffset))
		}
	}

	var head bytes.Buffer
	head.WriteString("II")
	_ = binary.Write(&head, binary.LittleEndian, uint16(42))
	_ = binary.Write(&head, binary.LittleEndian, uint32(8))
	_ = binary.Write(&head, binary.LittleEndian, uint16(len(entries)))
	for i, e := range entries {
		_ = binary.Write(&head, binary.LittleEndian, e.tag)
		_ = binary.Write(&head, binary.LittleEndian, e.typ)
		_ = binary.Write(&head, binary.LittleEndian, e.count)
		field := make([]byte, 4)
		if len(e.value) <= 4 {
			copy(field, e.value)
		} else {
			binary.LittleEndian.PutUint32(field, uint32(valueOffsets[i]))
		}
		head.Write(field)
	}
	_ = binary.Write(&head, binary.LittleEndian, uint32(0))

	if _, err := w.Write(head.Bytes()); err != nil {
		return err
	}
	if _, err := w.Write(extra.Bytes()); err != nil {
		return err
	}

	row := make([]byte, p.width*nb*bytesPerSample)
	for y := 0; y < p.height; y++ {
		i := 0
		for x := 0; x < p.width; x++ {
			idx := y*p.width + x
			for b := 0; b < nb; b++ {
				v := p.bands[b][idx]
				if bytesPerSample == 1 {
					row[i] = byte(v)
					i++
				} else {
					binary.LittleEndian.PutUint16(row[i:], v)
					i += 2
				}
			}
		}
		if _, err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

// writePrjSidecar writes a .prj file when the projection is not an EPSG code
// and therefore cannot be expressed with GeoKeys.
func writePrjSidecar(path string, p *pixels) error {
	prj := prjPath(path)
	if _, ok := EPSGCode(p.projection); ok || strings.TrimSpace(p.projection) == "" {
		if err := os.Remove(prj); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(prj, []byte(p.projection), 0o644)
}
