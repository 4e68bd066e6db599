package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"hstin/regiontiles/internal/config"
)

func TestValidate(t *testing.T) {
	require.NoError(t, config.Default().Validate())

	for _, tc := range []struct {
		name   string
		modify func(*config.Config)
		want   error
	}{
		{"zero workers", func(c *config.Config) { c.Workers = 0 }, config.ErrInvalidWorkers},
		{"negative workers", func(c *config.Config) { c.Workers = -3 }, config.ErrInvalidWorkers},
		{"zero queue", func(c *config.Config) { c.QueueSize = 0 }, config.ErrInvalidQueue},
		{"no levels", func(c *config.Config) { c.Levels = 0 }, config.ErrInvalidZoom},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := config.Default()
			tc.modify(cfg)
			err := cfg.Validate()
			require.Truef(t, errors.Is(err, tc.want), "%v", err)
		})
	}
}

func TestRegionValidate(t *testing.T) {
	r := config.Region{Name: "world", BBox: [4]float64{-180, -85, 180, 85}, MinZoom: 0, MaxZoom: 18}
	require.NoError(t, r.Validate(config.DefaultLevels))

	r.MaxZoom = 19
	require.ErrorIs(t, r.Validate(config.DefaultLevels), config.ErrInvalidZoom)

	r.MinZoom, r.MaxZoom = 5, 4
	require.ErrorIs(t, r.Validate(config.DefaultLevels), config.ErrInvalidZoom)

	r.MinZoom, r.MaxZoom, r.Name = 0, 1, ""
	require.ErrorIs(t, r.Validate(config.DefaultLevels), config.ErrInvalidRegion)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	data := []byte(`
root: /srv/tiles
tms: true
workers: 3
regions:
  - name: europe
    bbox: [-10.5, 35, 30, 70]
    minzoom: 0
    maxzoom: 6
  - name: iceland
    bbox: [-25, 63, -13, 67]
    minzoom: 4
    maxzoom: 10
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	cfg, regions, err := config.LoadFile(config.NewViper(), path)
	require.NoError(t, err)
	require.Equal(t, "/srv/tiles", cfg.Root)
	require.True(t, cfg.TMS)
	require.Equal(t, 3, cfg.Workers)
	require.Equal(t, config.DefaultQueueSize, cfg.QueueSize)
	require.Equal(t, int64(config.EmptyPNGSize), cfg.EmptyTileSize)
	require.Len(t, regions, 2)
	require.Equal(t, config.Region{
		Name:    "europe",
		BBox:    [4]float64{-10.5, 35, 30, 70},
		MinZoom: 0,
		MaxZoom: 6,
	}, regions[0])
	require.Equal(t, "iceland", regions[1].Name)
}

func TestLoadFileRejectsZoom(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	data := []byte(`
regions:
  - name: deep
    bbox: [0, 0, 1, 1]
    minzoom: 0
    maxzoom: 25
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, _, err := config.LoadFile(config.NewViper(), path)
	require.ErrorIs(t, err, config.ErrInvalidZoom)
}
