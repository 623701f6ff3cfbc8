// Package merge combines an existing raster with newly arrived tiles into a
// single output raster.
//
// Two policies are available:
//
//   - warp: the output covers the union extent of all inputs at the existing
//     raster's resolution. Inputs are painted in order (existing first, then
//     tiles), nearest-neighbour, so later inputs win where they overlap.
//     Source nodata pixels are not painted.
//   - overwrite: the output is sized to the larger of the existing raster and
//     the newest tile, keeps the existing raster's georeferencing, and each
//     band receives the newest tile's band verbatim. Pixels of the existing
//     raster are not preserved.
//
// Merges never retry. Every dataset opened by a merge is closed before it
// returns.
package merge
