package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

func newInfoCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "info RASTER",
		Short: "Describe a raster",
		Long: `Print the size, bands, data type, georeferencing and nodata value of a
raster, as mosaicwatch reads it. Georeferencing comes from GeoTIFF tags or a
world file sidecar; projection from the GeoTIFF keys or a .prj sidecar.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := raster.Stat(absPath(args[0]))
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			return printRasterInfo(cmd.OutOrStdout(), info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func printRasterInfo(out io.Writer, info raster.Info) error {
	projection := info.Projection
	if projection == "" {
		projection = "none"
	}
	gt := info.GeoTransform
	b := info.Bounds

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Path:\t%s\n", info.Path)
	_, _ = fmt.Fprintf(w, "Size:\t%d x %d\n", info.Width, info.Height)
	_, _ = fmt.Fprintf(w, "Bands:\t%d (%s)\n", info.Bands, info.DataType)
	_, _ = fmt.Fprintf(w, "Projection:\t%s\n", projection)
	_, _ = fmt.Fprintf(w, "Origin:\t%g, %g\n", gt[0], gt[3])
	_, _ = fmt.Fprintf(w, "Pixel size:\t%g x %g\n", gt[1], gt[5])
	_, _ = fmt.Fprintf(w, "Bounds:\t%g, %g, %g, %g\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	if info.NoData != nil {
		_, _ = fmt.Fprintf(w, "NoData:\t%g\n", *info.NoData)
	}
	return w.Flush()
}
