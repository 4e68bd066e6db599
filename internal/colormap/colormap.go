// Package colormap maps numeric feature values to fill colours.
//
// A colour map file has one entry per line: a threshold followed by R G B A.
// Blank lines and lines starting with '#' are skipped; "-inf" is accepted as
// a threshold.
//
//	-inf 13 26 43 255
//	1.5  40 80 160 255
//	10   250 220 60 255
package colormap

import (
	"bufio"
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
)

type Entry struct {
	Threshold float64
	Color     color.RGBA
}

// ColorMap picks the colour of the highest threshold not above a value.
type ColorMap struct {
	entries  []Entry
	fallback color.RGBA
}

// New returns a ColorMap over entries, sorted by threshold. fallback is used
// for NaN and for values below every threshold.
func New(entries []Entry, fallback color.RGBA) *ColorMap {
	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b Entry) int {
		switch {
		case a.Threshold < b.Threshold:
			return -1
		case a.Threshold > b.Threshold:
			return 1
		}
		return 0
	})
	return &ColorMap{entries: sorted, fallback: fallback}
}

func Load(filename string, fallback color.RGBA, logger *slog.Logger) (*ColorMap, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("error opening color map file: %w", err)
	}
	defer file.Close()
	return Parse(file, fallback, logger)
}

// Parse reads entries from r. Malformed lines are logged and skipped.
func Parse(r io.Reader, fallback color.RGBA, logger *slog.Logger) (*ColorMap, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	var entries []Entry
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		fields := strings.Fields(line)
		if len(fields) < 4 {
			logger.Warn("invalid color map line", "line", line)
			continue
		}

		var threshold float64
		if fields[0] == "-inf" {
			threshold = math.Inf(-1)
		} else {
			v, err := strconv.ParseFloat(fields[0], 64)
			if err != nil {
				logger.Warn("invalid color map threshold", "value", fields[0])
				continue
			}
			threshold = v
		}

		// alpha is optional
		rgba := [4]uint8{3: 255}
		valid := true
		for i := range min(len(fields)-1, len(rgba)) {
			c, err := strconv.ParseUint(fields[i+1], 10, 8)
			if err != nil {
				valid = false
				break
			}
			rgba[i] = uint8(c)
		}
		if !valid {
			logger.Warn("invalid color map color", "line", line)
			continue
		}

		entries = append(entries, Entry{
			Threshold: threshold,
			Color:     color.RGBA{rgba[0], rgba[1], rgba[2], rgba[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("no valid entries found in color map")
	}
	return New(entries, fallback), nil
}

func (m *ColorMap) Color(value float64) color.RGBA {
	if math.IsNaN(value) {
		return m.fallback
	}
	for i := len(m.entries) - 1; i >= 0; i-- {
		if value >= m.entries[i].Threshold {
			return m.entries[i].Color
		}
	}
	return m.fallback
}

func (m *ColorMap) Len() int {
	return len(m.entries)
}
