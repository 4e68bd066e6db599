package render

import (
	"context"
	"fmt"
	"image/color"
	"io"
	"os"

	"github.com/gogpu/gg"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/project"

	"hstin/regiontiles/internal/colormap"
)

// Style controls how the vector renderer paints features.
type Style struct {
	Fill        color.RGBA
	Stroke      color.RGBA
	LineWidth   float64
	PointRadius float64
	Background  color.RGBA

	// Property names a numeric feature property looked up in ColorMap for the
	// fill colour. Features without it use Fill.
	Property string
	ColorMap *colormap.ColorMap

	// Buffer is the margin in pixels around a tile within which features are
	// still drawn, so strokes and dots crossing tile edges are not cut off.
	Buffer float64
}

func DefaultStyle() Style {
	return Style{
		Fill:        color.RGBA{40, 80, 160, 160},
		Stroke:      color.RGBA{20, 40, 80, 255},
		LineWidth:   1,
		PointRadius: 2,
		Buffer:      8,
	}
}

type vectorFeature struct {
	geom  orb.Geometry // Web Mercator
	bound orb.Bound
	fill  color.RGBA
}

// VectorRenderer rasterizes a GeoJSON feature collection into tiles. Features
// are projected to Web Mercator once up front and shared read-only by all
// workers; each Render call uses its own drawing context.
type VectorRenderer struct {
	features []vectorFeature
	style    Style
	encoder  Encoder
}

func NewVectorRenderer(fc *geojson.FeatureCollection, style Style, enc Encoder) *VectorRenderer {
	features := make([]vectorFeature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		geom := project.Geometry(orb.Clone(f.Geometry), project.WGS84.ToMercator)
		fill := style.Fill
		if style.ColorMap != nil && style.Property != "" {
			if v, ok := f.Properties[style.Property].(float64); ok {
				fill = style.ColorMap.Color(v)
			}
		}
		features = append(features, vectorFeature{geom: geom, bound: geom.Bound(), fill: fill})
	}
	return &VectorRenderer{features: features, style: style, encoder: enc}
}

// LoadVectorRenderer reads a GeoJSON FeatureCollection from path.
func LoadVectorRenderer(path string, style Style, enc Encoder) (*VectorRenderer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read features: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse features %s: %w", path, err)
	}
	return NewVectorRenderer(fc, style, enc), nil
}

func (r *VectorRenderer) Forward(ll orb.Point) orb.Point {
	return Mercator(ll)
}

func (r *VectorRenderer) Render(ctx context.Context, req Request) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	width := req.Bound.Right() - req.Bound.Left()
	height := req.Bound.Top() - req.Bound.Bottom()
	if width <= 0 || height <= 0 {
		return fmt.Errorf("degenerate render bound %v", req.Bound)
	}

	dc := gg.NewContext(req.Size, req.Size)
	defer dc.Close()
	if r.style.Background.A > 0 {
		dc.ClearWithColor(gg.FromColor(r.style.Background))
	}

	c := canvas{
		dc:     dc,
		bound:  req.Bound,
		scaleX: float64(req.Size) / width,
		scaleY: float64(req.Size) / height,
		style:  &r.style,
	}
	query := req.Bound.Pad(r.style.Buffer / c.scaleX)
	for _, f := range r.features {
		if !f.bound.Intersects(query) {
			continue
		}
		if err := c.draw(f.geom, f.fill); err != nil {
			return err
		}
	}

	return writeFile(req.Path, func(w io.Writer) error {
		return r.encoder.Encode(w, dc.Image())
	})
}

type canvas struct {
	dc             *gg.Context
	bound          orb.Bound
	scaleX, scaleY float64
	style          *Style
}

func (c canvas) pixel(p orb.Point) (float64, float64) {
	return (p.X() - c.bound.Left()) * c.scaleX, (c.bound.Top() - p.Y()) * c.scaleY
}

func (c canvas) trace(ls []orb.Point, closed bool) {
	for i, p := range ls {
		x, y := c.pixel(p)
		if i == 0 {
			c.dc.MoveTo(x, y)
		} else {
			c.dc.LineTo(x, y)
		}
	}
	if closed && len(ls) > 0 {
		c.dc.ClosePath()
	}
}

func (c canvas) fillPolygon(p orb.Polygon, fill color.RGBA) error {
	for _, ring := range p {
		c.trace(ring, true)
	}
	c.dc.SetFillRule(gg.FillRuleEvenOdd)
	c.dc.SetColor(fill)
	if err := c.dc.FillPreserve(); err != nil {
		return err
	}
	return c.stroke()
}

func (c canvas) stroke() error {
	c.dc.SetColor(c.style.Stroke)
	c.dc.SetLineWidth(c.style.LineWidth)
	return c.dc.Stroke()
}

func (c canvas) dot(p orb.Point, fill color.RGBA) error {
	x, y := c.pixel(p)
	c.dc.DrawCircle(x, y, c.style.PointRadius)
	c.dc.SetColor(fill)
	return c.dc.Fill()
}

func (c canvas) draw(g orb.Geometry, fill color.RGBA) error {
	switch g := g.(type) {
	case orb.Point:
		return c.dot(g, fill)
	case orb.MultiPoint:
		for _, p := range g {
			if err := c.dot(p, fill); err != nil {
				return err
			}
		}
	case orb.LineString:
		c.trace(g, false)
		return c.stroke()
	case orb.MultiLineString:
		for _, ls := range g {
			c.trace(ls, false)
		}
		return c.stroke()
	case orb.Ring:
		return c.fillPolygon(orb.Polygon{g}, fill)
	case orb.Polygon:
		return c.fillPolygon(g, fill)
	case orb.MultiPolygon:
		for _, p := range g {
			if err := c.fillPolygon(p, fill); err != nil {
				return err
			}
		}
	case orb.Bound:
		return c.fillPolygon(g.ToPolygon(), fill)
	case orb.Collection:
		for _, child := range g {
			if err := c.draw(child, fill); err != nil {
				return err
			}
		}
	}
	return nil
}
