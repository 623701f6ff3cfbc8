package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// worldFileCandidates lists the sidecar names checked for a raster, in order:
// first+last letter of the extension plus "w" (.tfw, .pgw, .jgw), the full
// extension plus "w" (.tifw, .pngw), then .wld.
func worldFileCandidates(path string) []string {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)
	e := strings.TrimPrefix(ext, ".")
	var out []string
	if len(e) >= 2 {
		out = append(out, base+"."+string(e[0])+string(e[len(e)-1])+"w")
	}
	if e != "" {
		out = append(out, base+"."+e+"w")
	}
	return append(out, base+".wld")
}

func prjPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".prj"
}

// readWorldFile returns the geotransform from the first world file found
// next to path. World files hold A D B E C F, one per line, where C and F
// address the centre of the top-left pixel.
func readWorldFile(path string) (GeoTransform, bool, error) {
	for _, candidate := range worldFileCandidates(path) {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		fields := strings.Fields(string(data))
		if len(fields) < 6 {
			return GeoTransform{}, false, fmt.Errorf("world file %s has %d values, want 6", candidate, len(fields))
		}
		var v [6]float64
		for i := 0; i < 6; i++ {
			v[i], err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return GeoTransform{}, false, fmt.Errorf("world file %s line %d: %w", candidate, i+1, err)
			}
		}
		a, d, b, e, c, f := v[0], v[1], v[2], v[3], v[4], v[5]
		return GeoTransform{c - a/2 - b/2, a, b, f - d/2 - e/2, d, e}, true, nil
	}
	return GeoTransform{}, false, nil
}

// writeWorldFile writes the inverse of readWorldFile.
func writeWorldFile(path string, gt GeoTransform) error {
	c := gt[0] + gt[1]/2 + gt[2]/2
	f := gt[3] + gt[4]/2 + gt[5]/2
	lines := []float64{gt[1], gt[4], gt[2], gt[5], c, f}
	var sb strings.Builder
	for _, v := range lines {
		sb.WriteString(strconv.FormatFloat(v, 'f', -1, 64))
		sb.WriteByte('\n')
	}
	return os.WriteFile(worldFileCandidates(path)[0], []byte(sb.String()), 0o644)
}

// readPrj returns the trimmed contents of the .prj sidecar, if any.
func readPrj(path string) string {
	data, err := os.ReadFile(prjPath(path))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// encodePNG writes gray, RGB or RGBA at 8 or 16 bits. PNG cannot store
// georeferencing, so writePNGSidecars adds a world file and .prj.
func encodePNG(w io.Writer, p *pixels) error {
	rect := image.Rect(0, 0, p.width, p.height)
	nb := len(p.bands)
	var img image.Image

	switch {
	case nb == 1 && p.dtype == Byte:
		g := image.NewGray(rect)
		for i, v := range p.bands[0] {
			g.Pix[i] = uint8(v)
		}
		img = g
	case nb == 1:
		g := image.NewGray16(rect)
		for i, v := range p.bands[0] {
			g.Pix[2*i] = uint8(v >> 8)
			g.Pix[2*i+1] = uint8(v)
		}
		img = g
	case p.dtype == Byte:
		m := image.NewNRGBA(rect)
		for i := 0; i < p.width*p.height; i++ {
			a := uint8(0xff)
			if nb == 4 {
				a = uint8(p.bands[3][i])
			}
			m.Pix[4*i] = uint8(p.bands[0][i])
			m.Pix[4*i+1] = uint8(p.bands[1][i])
			m.Pix[4*i+2] = uint8(p.bands[2][i])
			m.Pix[4*i+3] = a
		}
		img = m
	default:
		m := image.NewNRGBA64(rect)
		for y := 0; y < p.height; y++ {
			for x := 0; x < p.width; x++ {
				i := y*p.width + x
				a := uint16(0xffff)
				if nb == 4 {
					a = p.bands[3][i]
				}
				m.SetNRGBA64(x, y, color.NRGBA64{R: p.bands[0][i], G: p.bands[1][i], B: p.bands[2][i], A: a})
			}
		}
		img = m
	}
	return png.Encode(w, img)
}

func writePNGSidecars(path string, p *pixels) error {
	if err := writeWorldFile(path, p.geo); err != nil {
		return err
	}
	if strings.TrimSpace(p.projection) == "" {
		if err := os.Remove(prjPath(path)); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	return os.WriteFile(prjPath(path), []byte(p.projection), 0o644)
}
