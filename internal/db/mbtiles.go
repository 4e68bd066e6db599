// Package db packs a rendered tile tree into an MBTiles (SQLite) file.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"hstin/regiontiles/internal/tiledir"
)

// Metadata describes the tileset in the MBTiles metadata table. Bounds is
// [west, south, east, north].
type Metadata struct {
	Name        string
	Description string
	Format      string
	Bounds      [4]float64
}

func InitDB(dbPath string) (*sql.DB, error) {
	if err := os.Remove(dbPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE tiles (
			zoom_level INTEGER,
			tile_column INTEGER,
			tile_row INTEGER,
			tile_data BLOB,
			PRIMARY KEY (zoom_level, tile_column, tile_row)
		);
		CREATE TABLE metadata (
			name TEXT,
			value TEXT,
			PRIMARY KEY (name)
		);
	`)
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Execer is satisfied by *sql.DB and *sql.Tx.
type Execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// WriteMetadata stores meta along with the zoom range actually packed.
func WriteMetadata(db Execer, meta Metadata, minZoom, maxZoom int) error {
	b := meta.Bounds
	centerLon := (b[0] + b[2]) / 2
	centerLat := (b[1] + b[3]) / 2

	values := [][2]string{
		{"name", meta.Name},
		{"type", "overlay"},
		{"version", "1.1"},
		{"description", meta.Description},
		{"format", meta.Format},
		{"minzoom", strconv.Itoa(minZoom)},
		{"maxzoom", strconv.Itoa(maxZoom)},
		{"bounds", fmt.Sprintf("%f,%f,%f,%f", b[0], b[1], b[2], b[3])},
		{"center", fmt.Sprintf("%f,%f,%d", centerLon, centerLat, (minZoom+maxZoom)/2)},
	}
	for _, kv := range values {
		if _, err := db.Exec("INSERT OR REPLACE INTO metadata (name, value) VALUES (?, ?)", kv[0], kv[1]); err != nil {
			return err
		}
	}
	return nil
}

// Pack copies every "<z>/<x>/<y>.<ext>" file under the layout's region
// directory into a fresh MBTiles file at dbPath, converting rows to the TMS
// scheme MBTiles uses. progress, if set, is called once per tile. It returns
// the number of tiles written.
//
// The database is built next to dbPath and renamed over it only once it is
// complete, so a failed or cancelled pack leaves an existing file untouched.
func Pack(ctx context.Context, dbPath string, layout tiledir.Layout, meta Metadata, progress func()) (n int64, err error) {
	root := layout.RegionDir()
	info, err := os.Stat(root)
	if err != nil {
		return 0, fmt.Errorf("failed to read region directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("region path %s is not a directory", root)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dbPath), "."+filepath.Base(dbPath)+".*")
	if err != nil {
		return 0, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err != nil {
			os.Remove(tmpPath)
		}
	}()

	database, err := InitDB(tmpPath)
	if err != nil {
		return 0, fmt.Errorf("failed to initialize database: %w", err)
	}
	n, err = packTiles(ctx, database, layout, meta, progress)
	if err == nil {
		_, err = database.Exec("VACUUM")
	}
	if cerr := database.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return 0, err
	}

	if err := os.Rename(tmpPath, dbPath); err != nil {
		os.Remove(tmpPath)
		return 0, err
	}
	return n, nil
}

func packTiles(ctx context.Context, database *sql.DB, layout tiledir.Layout, meta Metadata, progress func()) (int64, error) {
	tx, err := database.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "INSERT INTO tiles (zoom_level, tile_column, tile_row, tile_data) VALUES (?, ?, ?, ?)")
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	var count int64
	minZoom, maxZoom := -1, -1
	root := layout.RegionDir()
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		z, x, y, ok := parseTilePath(rel, layout.Ext)
		if !ok {
			return nil
		}
		row := y
		if !layout.TMS {
			row = (1 << z) - 1 - y
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, z, x, row, data); err != nil {
			return fmt.Errorf("failed to insert tile %d/%d/%d: %w", z, x, y, err)
		}

		count++
		if minZoom < 0 || z < minZoom {
			minZoom = z
		}
		if z > maxZoom {
			maxZoom = z
		}
		if progress != nil {
			progress()
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if meta.Format == "" {
		meta.Format = layout.Ext
	}
	if meta.Name == "" {
		meta.Name = layout.Region
	}
	if err := WriteMetadata(tx, meta, max(minZoom, 0), max(maxZoom, 0)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return count, nil
}

// parseTilePath parses "z/x/y.ext". Rows must fit the zoom level.
func parseTilePath(rel, ext string) (z, x, y int, ok bool) {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) != 3 {
		return 0, 0, 0, false
	}
	name, found := strings.CutSuffix(parts[2], "."+ext)
	if !found {
		return 0, 0, 0, false
	}

	var err error
	if z, err = strconv.Atoi(parts[0]); err != nil || z < 0 || z > 30 {
		return 0, 0, 0, false
	}
	if x, err = strconv.Atoi(parts[1]); err != nil || x < 0 || x >= 1<<z {
		return 0, 0, 0, false
	}
	if y, err = strconv.Atoi(name); err != nil || y < 0 || y >= 1<<z {
		return 0, 0, 0, false
	}
	return z, x, y, true
}
