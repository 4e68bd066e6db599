package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"hstin/regiontiles/internal/config"
	"hstin/regiontiles/internal/proj"
	"hstin/regiontiles/internal/tiledir"
	"hstin/regiontiles/internal/tiles"
)

var (
	optTilesBBox   string
	optTilesZoom   string
	optTilesRegion string
	optTilesPaths  bool
	optTilesCount  bool
)

var tilesCmd = &cobra.Command{
	Use:   "tiles",
	Short: "List the tiles covering a bounding box",
	Long: `Print z/x/y for every tile covering --bbox over --zoom, in render order.
With --paths the output file path of each tile is printed instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if optTilesBBox == "" {
			return errors.New("--bbox is required")
		}
		bbox, err := parseBBox(optTilesBBox)
		if err != nil {
			return err
		}
		minZ, maxZ, err := parseZoom(optTilesZoom)
		if err != nil {
			return err
		}

		levels := v.GetInt("levels")
		if levels <= 0 {
			levels = config.DefaultLevels
		}
		r := config.Region{Name: "tiles", BBox: bbox, MinZoom: minZ, MaxZoom: maxZ}
		if err := r.Validate(levels); err != nil {
			return err
		}

		table := proj.NewTable(levels, config.TileSize)
		b := tiles.FromArray(bbox)
		out := cmd.OutOrStdout()
		if optTilesCount {
			_, err := fmt.Fprintln(out, tiles.Count(table, b, minZ, maxZ))
			return err
		}

		layout := tiledir.Layout{
			Root:   v.GetString("root"),
			Region: optTilesRegion,
			Ext:    v.GetString("ext"),
			TMS:    v.GetBool("tms"),
		}
		for t := range tiles.Enumerate(table, b, minZ, maxZ) {
			if optTilesPaths {
				_, err = fmt.Fprintln(out, layout.TilePath(t))
			} else {
				_, err = fmt.Fprintf(out, "%d/%d/%d\n", t.Z, t.X, t.Y)
			}
			if err != nil {
				return err
			}
		}
		return nil
	},
}

func init() {
	flags := tilesCmd.Flags()
	flags.StringVar(&optTilesBBox, "bbox", "", "Bounding box west,south,east,north in degrees")
	flags.StringVar(&optTilesZoom, "zoom", "0-10", "Zoom range MIN-MAX")
	flags.BoolVar(&optTilesPaths, "paths", false, "Print tile file paths")
	flags.StringVar(&optTilesRegion, "region", "", "Region subdirectory used for --paths")
	flags.BoolVar(&optTilesCount, "count", false, "Print only the number of tiles")
	rootCmd.AddCommand(tilesCmd)
}
