package mcp

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/Aman-CERP/mosaicwatch/internal/raster"
)

// FormatRasterInfo formats a raster description as markdown.
func FormatRasterInfo(info raster.Info) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## %s\n\n", filepath.Base(info.Path))
	writeRasterTable(&sb, info)
	return sb.String()
}

// FormatMergeResult formats a completed merge as markdown.
func FormatMergeResult(out MergeRastersOutput) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "## Merged %d tile", out.Tiles)
	if out.Tiles != 1 {
		sb.WriteString("s")
	}
	fmt.Fprintf(&sb, " into %s\n\n", filepath.Base(out.Output))
	fmt.Fprintf(&sb, "**Policy:** %s  \n**Duration:** %d ms\n\n", out.Policy, out.DurationMS)
	writeRasterTable(&sb, out.Raster)
	return sb.String()
}

// FormatSessionStatus formats session status as markdown.
func FormatSessionStatus(out SessionStatusOutput) string {
	if out.Session == nil {
		return "No mosaicwatch session is running and none has been recorded."
	}
	s := out.Session

	var sb strings.Builder
	title := s.Name
	if title == "" {
		title = s.ID
	}
	fmt.Fprintf(&sb, "## Session %s\n\n", title)
	if out.Running {
		fmt.Fprintf(&sb, "**State:** %s (pid %d, up %s)\n\n", s.State, out.PID, out.Uptime)
	} else {
		fmt.Fprintf(&sb, "**State:** %s (last recorded session, not running)\n\n", s.State)
	}

	sb.WriteString("| Field | Value |\n|---|---|\n")
	row := func(k, v string) {
		if v != "" {
			fmt.Fprintf(&sb, "| %s | %s |\n", k, v)
		}
	}
	row("Watching", s.WatchedDir)
	row("Base raster", s.BaseRaster)
	row("Output", s.Output)
	row("Current mosaic", s.CurrentMosaic)
	row("Strategy", s.Strategy)
	row("Policy", s.Policy)
	row("Batches", fmt.Sprint(s.Batches))
	row("Tiles", fmt.Sprint(s.Tiles))
	row("Errors", fmt.Sprint(s.Errors))
	row("Stop reason", s.StopReason)
	row("Last error", s.LastError)
	row("Started", s.StartedAt)
	row("Last activity", s.LastActivity)
	row("Stopped", s.StoppedAt)
	if len(s.Layers) > 0 {
		row("Layers", strings.Join(s.Layers, ", "))
	}

	if len(out.Merges) > 0 {
		sb.WriteString("\n### Recent merges\n\n")
		for _, m := range out.Merges {
			fmt.Fprintf(&sb, "- %s %s: %d tile(s) into %s (%d ms)", m.At, m.Status, len(m.Tiles), filepath.Base(m.Output), m.DurationMS)
			if m.Error != "" {
				fmt.Fprintf(&sb, ", %s", m.Error)
			}
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// FormatStopResult formats the outcome of a stop request.
func FormatStopResult(out StopSessionOutput) string {
	if out.StopReason != "" {
		return fmt.Sprintf("Session %s (%s).", out.State, out.StopReason)
	}
	return fmt.Sprintf("Stop requested; session is %s.", out.State)
}

func writeRasterTable(sb *strings.Builder, info raster.Info) {
	sb.WriteString("| Field | Value |\n|---|---|\n")
	fmt.Fprintf(sb, "| Path | %s |\n", info.Path)
	fmt.Fprintf(sb, "| Size | %d x %d |\n", info.Width, info.Height)
	fmt.Fprintf(sb, "| Bands | %d (%s) |\n", info.Bands, info.DataType)
	projection := info.Projection
	if projection == "" {
		projection = "none"
	}
	fmt.Fprintf(sb, "| Projection | %s |\n", projection)
	fmt.Fprintf(sb, "| Pixel size | %g x %g |\n", info.GeoTransform[1], info.GeoTransform[5])
	b := info.Bounds
	fmt.Fprintf(sb, "| Bounds | %g, %g, %g, %g |\n", b.MinX, b.MinY, b.MaxX, b.MaxY)
	if info.NoData != nil {
		fmt.Fprintf(sb, "| NoData | %g |\n", *info.NoData)
	}
}

// clampLimit ensures limit is within bounds.
func clampLimit(limit, defaultVal, min, max int) int {
	if limit <= 0 {
		return defaultVal
	}
	if limit < min {
		return min
	}
	if limit > max {
		return max
	}
	return limit
}
