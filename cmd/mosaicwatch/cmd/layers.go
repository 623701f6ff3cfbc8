package cmd

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/mosaicwatch/internal/store"
)

func newLayersCmd() *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "layers",
		Short: "List the layers in the map project",
		Long: `List the layers stored in the project database. A watch session keeps
exactly one "Merged Raster" layer pointing at the latest mosaic.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			var layers []store.LayerRecord
			if fileExists(cfg.Project.DatabasePath) {
				st, err := store.Open(cfg.Project.DatabasePath)
				if err != nil {
					return err
				}
				defer func() { _ = st.Close() }()

				if layers, err = st.ListLayers(cmd.Context()); err != nil {
					return err
				}
			}

			if jsonOutput {
				if layers == nil {
					layers = []store.LayerRecord{}
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(layers)
			}

			if len(layers) == 0 {
				_, _ = fmt.Fprintln(cmd.OutOrStdout(), "No layers.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "ID\tNAME\tSIZE\tBANDS\tADDED\tSOURCE")
			for _, l := range layers {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%dx%d\t%d\t%s\t%s\n",
					shortID(l.ID), l.Name, l.Width, l.Height, l.Bands,
					formatTimeAgo(l.AddedAt), l.Source)
			}
			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

// shortID trims a UUID for table display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
