package main

import (
	"errors"
	"fmt"
	"image/color"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"hstin/regiontiles/internal/colormap"
	"hstin/regiontiles/internal/config"
	"hstin/regiontiles/internal/render"
)

var (
	optRegion        string
	optBBox          string
	optZoom          string
	optFeatures      string
	optColors        string
	optProperty      string
	optFormat        string
	optQuality       int
	optAutoEmptySize bool
)

var renderCmd = &cobra.Command{
	Use:   "render [flags] [-- command args...]",
	Short: "Render tile pyramids of one or more regions",
	Long: `Render every tile covering a region's bounding box over its zoom range.

Regions come either from --region/--bbox/--zoom or from the regions list of
--config. Tiles are drawn by the built-in vector renderer from --features, or
by an external command given after "--" whose arguments may use the
placeholders {minx} {miny} {maxx} {maxy} {zoom} {size} and {path}.`,
	RunE: runRender,
}

func init() {
	flags := renderCmd.Flags()
	flags.StringVar(&optRegion, "region", "", "Region name (output subdirectory)")
	flags.StringVar(&optBBox, "bbox", "", "Bounding box west,south,east,north in degrees")
	flags.StringVar(&optZoom, "zoom", "0-10", "Zoom range MIN-MAX")
	flags.Int("workers", config.DefaultWorkers, "Number of render workers")
	flags.Int("queue", config.DefaultQueueSize, "Job queue capacity")
	flags.Int("levels", config.DefaultLevels, "Number of projection levels")
	flags.Int64("empty-size", config.EmptyPNGSize, "Delete rendered tiles of exactly this many bytes (0 disables)")
	flags.BoolVar(&optAutoEmptySize, "auto-empty-size", false, "Derive the empty tile size from the output format")

	flags.StringVar(&optFeatures, "features", "", "GeoJSON FeatureCollection for the built-in renderer")
	flags.StringVar(&optColors, "colors", "", "Colour map file (threshold r g b [a] per line, alpha defaults to 255)")
	flags.StringVar(&optProperty, "property", "", "Numeric feature property looked up in the colour map")
	flags.StringVar(&optFormat, "format", "png", "Built-in renderer output format (png or webp)")
	flags.IntVar(&optQuality, "quality", 90, "WebP quality")

	bindFlags(v, flags, "workers", "queue", "levels", "empty-size")
	rootCmd.AddCommand(renderCmd)
}

func runRender(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	cfg, regions, err := loadRegions()
	if err != nil {
		return err
	}

	renderer, err := buildRenderer(cmd, args, cfg, logger)
	if err != nil {
		return err
	}
	cfg.Verbose = optVerbose

	gen, err := render.NewGenerator(cfg, renderer, render.WithLogger(logger))
	if err != nil {
		return err
	}

	start := time.Now()
	var failed int64
	for _, region := range regions {
		logger.Info("rendering region", "region", region.Name,
			"bbox", region.BBox, "zoom", fmt.Sprintf("%d-%d", region.MinZoom, region.MaxZoom))
		stats, err := gen.Generate(cmd.Context(), region)
		failed += stats.Failed
		if err != nil {
			return fmt.Errorf("region %s: %w", region.Name, err)
		}
	}

	logger.Info("all regions done", "regions", len(regions), "elapsed", time.Since(start).Round(time.Millisecond))
	if failed > 0 {
		return fmt.Errorf("%s tiles failed to render", humanize.Comma(failed))
	}
	return nil
}

// loadRegions builds the run configuration and region list from --config or
// from the single-region flags.
func loadRegions() (*config.Config, []config.Region, error) {
	cfg, regions, err := config.LoadFile(v, optConfig)
	if err != nil {
		return nil, nil, err
	}

	if optBBox != "" || optRegion != "" {
		if optBBox == "" || optRegion == "" {
			return nil, nil, errors.New("--region and --bbox must be given together")
		}
		bbox, err := parseBBox(optBBox)
		if err != nil {
			return nil, nil, err
		}
		minZ, maxZ, err := parseZoom(optZoom)
		if err != nil {
			return nil, nil, err
		}
		r := config.Region{Name: optRegion, BBox: bbox, MinZoom: minZ, MaxZoom: maxZ}
		if err := r.Validate(cfg.Levels); err != nil {
			return nil, nil, err
		}
		regions = append(regions, r)
	}

	if len(regions) == 0 {
		return nil, nil, errors.New("no regions: use --region/--bbox or a --config file with regions")
	}
	return cfg, regions, nil
}

func buildRenderer(cmd *cobra.Command, args []string, cfg *config.Config, logger *slog.Logger) (render.Renderer, error) {
	if dash := cmd.ArgsLenAtDash(); dash >= 0 && dash < len(args) {
		if optFeatures != "" {
			return nil, errors.New("--features cannot be combined with an external command")
		}
		if optAutoEmptySize {
			return nil, errors.New("--auto-empty-size needs the built-in renderer; set --empty-size for an external command")
		}
		command := args[dash:]
		return &render.CommandRenderer{Name: command[0], Args: command[1:]}, nil
	}

	if optFeatures == "" {
		return nil, errors.New("nothing to render: give --features or a command after --")
	}

	enc, err := render.NewEncoder(optFormat, optQuality)
	if err != nil {
		return nil, err
	}
	cfg.Ext = enc.Ext()
	// the built-in codecs do not produce the 103 byte reference tile, so the
	// signature is derived from the encoder unless given explicitly
	if optAutoEmptySize || !emptySizeSet(cmd) {
		size, err := render.EmptyTileSize(enc, config.TileSize)
		if err != nil {
			return nil, fmt.Errorf("failed to compute empty tile size: %w", err)
		}
		cfg.EmptyTileSize = size
		logger.Debug("empty tile size", "format", enc.Ext(), "bytes", size)
	}

	style := render.DefaultStyle()
	style.Property = optProperty
	if optColors != "" {
		cm, err := colormap.Load(optColors, color.RGBA{}, logger)
		if err != nil {
			return nil, err
		}
		style.ColorMap = cm
		logger.Debug("loaded colour map", "file", optColors, "entries", cm.Len())
	}

	return render.LoadVectorRenderer(optFeatures, style, enc)
}

// emptySizeSet reports whether the empty tile size was given by flag, region
// file or environment rather than left at its default.
func emptySizeSet(cmd *cobra.Command) bool {
	if cmd.Flags().Changed("empty-size") || v.InConfig("empty_size") {
		return true
	}
	_, ok := os.LookupEnv("REGIONTILES_EMPTY_SIZE")
	return ok
}
