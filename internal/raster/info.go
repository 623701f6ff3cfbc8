package raster

// Info summarises a dataset for display and tool output.
type Info struct {
	Path         string       `json:"path"`
	Width        int          `json:"width"`
	Height       int          `json:"height"`
	Bands        int          `json:"bands"`
	DataType     string       `json:"data_type"`
	GeoTransform GeoTransform `json:"geotransform"`
	Projection   string       `json:"projection,omitempty"`
	NoData       *float64     `json:"nodata,omitempty"`
	Bounds       Bounds       `json:"bounds"`
}

// Info describes the dataset.
func (d *Dataset) Info() Info {
	info := Info{
		Path:         d.path,
		Width:        d.Width(),
		Height:       d.Height(),
		Bands:        d.BandCount(),
		DataType:     d.DataType().String(),
		GeoTransform: d.GeoTransform(),
		Projection:   d.Projection(),
		Bounds:       d.Bounds(),
	}
	if v, ok := d.NoData(); ok {
		info.NoData = &v
	}
	return info
}

// Stat opens path, describes it and closes it again.
func Stat(path string) (Info, error) {
	ds, err := Open(path)
	if err != nil {
		return Info{}, err
	}
	defer func() { _ = ds.Close() }()
	return ds.Info(), nil
}
