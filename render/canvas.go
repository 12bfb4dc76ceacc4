package render

import (
	"image/color"
	"math"

	"github.com/TFMV/echoes/models"
	"github.com/fogleman/gg"
)

// Canvas is the 2D drawing surface the frame is painted onto.
// *gg.Context satisfies it.
type Canvas interface {
	Width() int
	Height() int
	Clear()
	SetColor(c color.Color)
	SetFillStyle(pattern gg.Pattern)
	SetLineWidth(lineWidth float64)
	DrawLine(x1, y1, x2, y2 float64)
	DrawCircle(x, y, r float64)
	DrawStringAnchored(s string, x, y, ax, ay float64)
	Fill()
	FillPreserve()
	Stroke()
}

// NewSurface creates a raster surface for vp. Device pixel scaling is applied to
// the surface transform so callers keep drawing in logical pixels.
func NewSurface(vp models.Viewport, pixelRatio float64) *gg.Context {
	if pixelRatio <= 0 {
		pixelRatio = 1
	}
	w := int(math.Ceil(math.Max(vp.Width, 0) * pixelRatio))
	h := int(math.Ceil(math.Max(vp.Height, 0) * pixelRatio))
	dc := gg.NewContext(w, h)
	dc.Scale(pixelRatio, pixelRatio)
	return dc
}

// Style controls the look of the canvas renderer
type Style struct {
	Background  string  `yaml:"background" toml:"background" json:"background"` // empty clears to transparent
	EdgeColor   string  `yaml:"edge_color" toml:"edge_color" json:"edge_color"`
	LabelColor  string  `yaml:"label_color" toml:"label_color" json:"label_color"`
	HoverStroke string  `yaml:"hover_stroke" toml:"hover_stroke" json:"hover_stroke"`
	HoverScale  float64 `yaml:"hover_scale" toml:"hover_scale" json:"hover_scale"`
	LabelOffset float64 `yaml:"label_offset" toml:"label_offset" json:"label_offset"`
}

// DefaultStyle returns the dark theme palette
func DefaultStyle() Style {
	return Style{
		EdgeColor:   "#06b6d4",
		LabelColor:  "#e2e8f0",
		HoverStroke: "#ffffff",
		HoverScale:  1.2,
		LabelOffset: 15,
	}
}

// CanvasRenderer paints a snapshot onto a Canvas. It keeps no state between calls.
type CanvasRenderer struct {
	style Style
}

// NewCanvasRenderer creates a renderer with the given style
func NewCanvasRenderer(style Style) *CanvasRenderer {
	if style.HoverScale <= 0 {
		style.HoverScale = 1
	}
	return &CanvasRenderer{style: style}
}

// Draw clears c and paints edges, then nodes, so links never cover node glyphs.
// Edges or nodes without a resolved position are skipped.
func (r *CanvasRenderer) Draw(c Canvas, snapshot *models.GraphSnapshot, positions models.Positions, hover string) {
	if r.style.Background == "" {
		c.SetColor(color.Transparent)
	} else {
		c.SetColor(ParseColor(r.style.Background))
	}
	c.Clear()

	if snapshot == nil {
		return
	}

	edgeColor := ParseColor(r.style.EdgeColor)
	for _, edge := range snapshot.Edges {
		if edge.Strength <= 0 {
			continue
		}
		src, ok := positions.Lookup(edge.Source)
		if !ok {
			continue
		}
		dst, ok := positions.Lookup(edge.Target)
		if !ok {
			continue
		}
		c.SetColor(withAlpha(edgeColor, edge.Strength*0.3))
		c.SetLineWidth(edge.Strength * 2)
		c.DrawLine(src.X, src.Y, dst.X, dst.Y)
		c.Stroke()
	}

	labelColor := ParseColor(r.style.LabelColor)
	hoverStroke := ParseColor(r.style.HoverStroke)
	for _, node := range snapshot.Nodes {
		p, ok := positions.Lookup(node.ID)
		if !ok {
			continue
		}

		hovered := hover != "" && hover == node.ID
		radius := node.Size
		if hovered {
			radius *= r.style.HoverScale
		}
		fill := ParseColor(node.Color)

		// Soft glow fading out at twice the radius
		glow := gg.NewRadialGradient(p.X, p.Y, 0, p.X, p.Y, radius*2)
		glow.AddColorStop(0, withAlpha(fill, 0x40/255.0))
		glow.AddColorStop(1, color.Transparent)
		c.SetFillStyle(glow)
		c.DrawCircle(p.X, p.Y, radius*2)
		c.Fill()

		c.SetColor(fill)
		c.DrawCircle(p.X, p.Y, radius)
		c.FillPreserve()
		if hovered {
			c.SetColor(hoverStroke)
			c.SetLineWidth(3)
		} else {
			c.SetColor(withAlpha(fill, 0x80/255.0))
			c.SetLineWidth(2)
		}
		c.Stroke()

		if node.Label != "" {
			c.SetColor(labelColor)
			c.DrawStringAnchored(node.Label, p.X, p.Y+radius+r.style.LabelOffset, 0.5, 0.5)
		}
	}
}
