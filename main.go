package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"hstin/regiontiles/internal/config"
)

var (
	optConfig  string
	optVerbose bool
	v          = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "regiontiles",
	Short: "Pre-render slippy map tile pyramids for geographic regions",
	Long: `
Renders every tile covering a bounding box over a zoom range into
<root>/<region>/<z>/<x>/<y>.<ext>, skipping tiles already on disk and
deleting tiles that come out empty.

Examples:

  regiontiles render --features roads.geojson --bbox -10,35,30,70 --zoom 0-7 --region europe
  regiontiles render --config regions.yaml --features roads.geojson
  regiontiles render --bbox 5.9,45.8,10.5,47.8 --zoom 6-12 --region ch -- nik4 --fit-to-bbox {minx},{miny},{maxx},{maxy} --size {size} style.xml {path}
  regiontiles pack --region europe --output europe.mbtiles
`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setDefaultSlog()
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&optConfig, "config", "", "Region file (yaml, json or toml) with settings and a regions list")
	pf.BoolVarP(&optVerbose, "verbose", "v", false, "Log every tile")
	pf.String("root", config.Default().Root, "Output root directory")
	pf.Bool("tms", false, "Name tile files by TMS row (bottom origin)")
	pf.String("ext", config.DefaultExt, "Tile file extension for external renderers")

	bindFlags(v, pf, "root", "tms", "ext")
}

// bindFlags lets a flag override the region file and environment for the
// viper key of the same name.
func bindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) {
	for _, name := range names {
		key := strings.ReplaceAll(name, "-", "_")
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func setDefaultSlog() {
	level := slog.LevelInfo
	if optVerbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// parseZoom accepts "MIN-MAX" or a single level.
func parseZoom(s string) (int, int, error) {
	parts := strings.Split(s, "-")
	switch len(parts) {
	case 1:
		z, err := strconv.Atoi(parts[0])
		if err != nil {
			return 0, 0, fmt.Errorf("invalid zoom value %q", s)
		}
		return z, z, nil
	case 2:
		lo, err1 := strconv.Atoi(parts[0])
		hi, err2 := strconv.Atoi(parts[1])
		if err1 != nil || err2 != nil {
			return 0, 0, fmt.Errorf("invalid zoom format %q, use MIN-MAX (e.g. 0-10)", s)
		}
		return lo, hi, nil
	}
	return 0, 0, fmt.Errorf("invalid zoom format %q, use MIN-MAX (e.g. 0-10)", s)
}

// parseBBox accepts "west,south,east,north".
func parseBBox(s string) ([4]float64, error) {
	var b [4]float64
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return b, fmt.Errorf("bbox format should be west,south,east,north")
	}
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return b, fmt.Errorf("invalid bbox value %q", p)
		}
		b[i] = f
	}
	return b, nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
