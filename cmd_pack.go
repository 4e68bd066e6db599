package main

import (
	"errors"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"hstin/regiontiles/internal/db"
	"hstin/regiontiles/internal/tiledir"
	"hstin/regiontiles/internal/tiles"
)

var (
	optPackRegion string
	optOutput     string
	optPackBBox   string
	optPackDesc   string
)

var packCmd = &cobra.Command{
	Use:   "pack",
	Short: "Pack a rendered region into an MBTiles file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if optPackRegion == "" || optOutput == "" {
			return errors.New("--region and --output are required")
		}

		meta := db.Metadata{
			Name:        optPackRegion,
			Description: optPackDesc,
			Format:      v.GetString("ext"),
			Bounds:      [4]float64{-180, -85.0511, 180, 85.0511},
		}
		if optPackBBox != "" {
			bbox, err := parseBBox(optPackBBox)
			if err != nil {
				return err
			}
			b := tiles.FromArray(bbox).Bound()
			meta.Bounds = [4]float64{b.Left(), b.Bottom(), b.Right(), b.Top()}
		}

		layout := tiledir.Layout{
			Root:   v.GetString("root"),
			Region: optPackRegion,
			Ext:    v.GetString("ext"),
			TMS:    v.GetBool("tms"),
		}

		bar := progressbar.NewOptions(-1,
			progressbar.OptionSetDescription("packing "+optPackRegion),
			progressbar.OptionShowCount(),
			progressbar.OptionShowIts(),
			progressbar.OptionSetItsString("tiles"),
		)
		start := time.Now()
		n, err := db.Pack(cmd.Context(), optOutput, layout, meta, func() { _ = bar.Add(1) })
		_ = bar.Finish()
		if err != nil {
			return err
		}

		slog.Info("MBTiles written", "file", optOutput, "tiles", humanize.Comma(n),
			"elapsed", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	flags := packCmd.Flags()
	flags.StringVar(&optPackRegion, "region", "", "Region to pack")
	flags.StringVarP(&optOutput, "output", "o", "", "Output .mbtiles file")
	flags.StringVar(&optPackBBox, "bbox", "", "Bounds metadata west,south,east,north")
	flags.StringVar(&optPackDesc, "description", "", "Description metadata")
	rootCmd.AddCommand(packCmd)
}
