package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // register JPEG format
	_ "image/png"  // register PNG format
	"os"
	"path/filepath"
	"strings"

	_ "golang.org/x/image/tiff" // register TIFF format

	mwerrors "github.com/Aman-CERP/mosaicwatch/internal/errors"
)

// SupportedExtensions lists the file extensions Open can decode.
var SupportedExtensions = []string{".tif", ".tiff", ".png", ".jpg", ".jpeg"}

// IsSupportedFormat reports whether the file extension is decodable.
func IsSupportedFormat(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Open decodes the raster at path into a read-only dataset.
func Open(path string) (*Dataset, error) {
	px, err := decodeFile(path)
	if err != nil {
		return nil, err
	}
	return &Dataset{path: path, px: px}, nil
}

func decodeFile(path string) (*pixels, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, mwerrors.New(mwerrors.ErrCodeFileNotFound, "raster not found", err).WithPath(path)
		}
		return nil, mwerrors.New(mwerrors.ErrCodeFilePermission, "cannot read raster", err).WithPath(path)
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, mwerrors.New(mwerrors.ErrCodeFileCorrupt,
			fmt.Sprintf("cannot decode raster: %v", err), err).WithPath(path)
	}

	var tags *tiffTags
	if format == "tiff" {
		if t, err := readTIFFTags(data); err == nil {
			tags = t
		}
	}
	samples := 0
	if tags != nil {
		samples = tags.samplesPerPixel
	}

	px := imageToPixels(img, samples)
	px.geo = DefaultGeoTransform

	if tags != nil {
		if gt, ok := tags.geoTransform(); ok {
			px.geo = gt
		}
		px.projection = tags.projection()
		px.noData, px.hasNoData = tags.noDataValue()
	}
	if tags == nil || len(tags.pixelScale)+len(tags.transformation) == 0 {
		gt, ok, err := readWorldFile(path)
		if err != nil {
			return nil, mwerrors.New(mwerrors.ErrCodeFileCorrupt, err.Error(), err).WithPath(path)
		}
		if ok {
			px.geo = gt
		}
	}
	if prj := readPrj(path); prj != "" {
		px.projection = prj
	}
	return px, nil
}

type opaquer interface {
	Opaque() bool
}

// imageToPixels splits a decoded image into bands. samples is the TIFF
// SamplesPerPixel value, or 0 when the source format does not declare it;
// in that case colour images get an alpha band only if they are not opaque.
func imageToPixels(img image.Image, samples int) *pixels {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	px := &pixels{width: w, height: h, dtype: Byte}

	switch m := img.(type) {
	case *image.Gray:
		px.bands = [][]uint16{make([]uint16, w*h)}
		for y := 0; y < h; y++ {
			row := m.Pix[y*m.Stride : y*m.Stride+w]
			for x, v := range row {
				px.bands[0][y*w+x] = uint16(v)
			}
		}
		return px
	case *image.Gray16:
		px.dtype = UInt16
		px.bands = [][]uint16{make([]uint16, w*h)}
		for y := 0; y < h; y++ {
			for x := 0; x < w; x++ {
				i := y*m.Stride + 2*x
				px.bands[0][y*w+x] = uint16(m.Pix[i])<<8 | uint16(m.Pix[i+1])
			}
		}
		return px
	}

	nb := samples
	if nb != 3 && nb != 4 {
		nb = 3
		if o, ok := img.(opaquer); ok && !o.Opaque() {
			nb = 4
		}
	}
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64:
		px.dtype = UInt16
	}
	px.bands = make([][]uint16, nb)
	for i := range px.bands {
		px.bands[i] = make([]uint16, w*h)
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var r, g, bl, a uint16
			switch m := img.(type) {
			case *image.NRGBA:
				c := m.NRGBAAt(b.Min.X+x, b.Min.Y+y)
				r, g, bl, a = uint16(c.R), uint16(c.G), uint16(c.B), uint16(c.A)
			case *image.RGBA:
				c := m.RGBAAt(b.Min.X+x, b.Min.Y+y)
				r, g, bl, a = uint16(c.R), uint16(c.G), uint16(c.B), uint16(c.A)
			case *image.NRGBA64:
				c := m.NRGBA64At(b.Min.X+x, b.Min.Y+y)
				r, g, bl, a = c.R, c.G, c.B, c.A
			case *image.RGBA64:
				c := m.RGBA64At(b.Min.X+x, b.Min.Y+y)
				r, g, bl, a = c.R, c.G, c.B, c.A
			default:
				c := color.NRGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.NRGBA)
				r, g, bl, a = uint16(c.R), uint16(c.G), uint16(c.B), uint16(c.A)
			}
			i := y*w + x
			px.bands[0][i], px.bands[1][i], px.bands[2][i] = r, g, bl
			if nb == 4 {
				px.bands[3][i] = a
			}
		}
	}
	return px
}
