package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// File is the on-disk form of a render run: top-level settings plus the list
// of regions to render.
type File struct {
	Root          string   `mapstructure:"root"`
	Ext           string   `mapstructure:"ext"`
	TMS           bool     `mapstructure:"tms"`
	Workers       int      `mapstructure:"workers"`
	QueueSize     int      `mapstructure:"queue"`
	Levels        int      `mapstructure:"levels"`
	EmptyTileSize int64    `mapstructure:"empty_size"`
	Regions       []Region `mapstructure:"regions"`
}

// NewViper returns a viper instance seeded with the defaults and reading
// REGIONTILES_* environment overrides.
func NewViper() *viper.Viper {
	d := Default()
	v := viper.New()
	v.SetEnvPrefix("regiontiles")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("root", d.Root)
	v.SetDefault("ext", d.Ext)
	v.SetDefault("tms", d.TMS)
	v.SetDefault("workers", d.Workers)
	v.SetDefault("queue", d.QueueSize)
	v.SetDefault("levels", d.Levels)
	v.SetDefault("empty_size", d.EmptyTileSize)
	return v
}

// LoadFile reads a region file (any format viper understands) into a Config
// and its regions. Every region is validated against the configured levels.
func LoadFile(v *viper.Viper, path string) (*Config, []Region, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var f File
	if err := v.Unmarshal(&f); err != nil {
		return nil, nil, fmt.Errorf("failed to decode config: %w", err)
	}

	cfg := &Config{
		Root:          f.Root,
		Ext:           f.Ext,
		TMS:           f.TMS,
		Workers:       f.Workers,
		QueueSize:     f.QueueSize,
		Levels:        f.Levels,
		EmptyTileSize: f.EmptyTileSize,
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	for _, r := range f.Regions {
		if err := r.Validate(cfg.Levels); err != nil {
			return nil, nil, err
		}
	}
	return cfg, f.Regions, nil
}
