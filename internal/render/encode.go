package render

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/chai2010/webp"
)

// Encoder writes a tile image in one codec.
type Encoder interface {
	Encode(w io.Writer, img image.Image) error
	Ext() string
}

type PNGEncoder struct {
	CompressionLevel png.CompressionLevel
}

func (e PNGEncoder) Encode(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: e.CompressionLevel}
	return enc.Encode(w, img)
}

func (PNGEncoder) Ext() string { return "png" }

type WebPEncoder struct {
	Quality  int
	Lossless bool
}

func (e WebPEncoder) Encode(w io.Writer, img image.Image) error {
	return webp.Encode(w, img, &webp.Options{Lossless: e.Lossless, Quality: float32(e.Quality)})
}

func (WebPEncoder) Ext() string { return "webp" }

// NewEncoder returns the encoder for a format name ("png" or "webp").
func NewEncoder(format string, quality int) (Encoder, error) {
	switch format {
	case "png", "":
		return PNGEncoder{CompressionLevel: png.BestCompression}, nil
	case "webp":
		return WebPEncoder{Quality: quality}, nil
	}
	return nil, fmt.Errorf("unsupported tile format %q", format)
}

// EmptyTileSize returns the encoded byte length of a fully transparent tile
// of the given edge. Tiles of exactly this size carry no content.
func EmptyTileSize(enc Encoder, size int) (int64, error) {
	var buf bytes.Buffer
	if err := enc.Encode(&buf, image.NewRGBA(image.Rect(0, 0, size, size))); err != nil {
		return 0, err
	}
	return int64(buf.Len()), nil
}
