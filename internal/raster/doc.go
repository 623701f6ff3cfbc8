// Package raster reads and writes georeferenced rasters for the mosaic engine.
//
// A Dataset holds decoded pixel data band by band together with its affine
// geotransform, projection and nodata value. Rasters are read from GeoTIFF,
// TIFF, PNG or JPEG files; georeferencing comes from GeoTIFF tags or from a
// world file and .prj sidecar. Output is written through a named Driver
// ("GTiff" or "PNG"), always via a temporary file and rename so readers never
// observe a partially written raster.
package raster
