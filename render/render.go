package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/TFMV/echoes/models"
)

// Frame is one rendered moment of a view: the resolved snapshot, the node
// positions at that tick and the hover target
type Frame struct {
	Key       int
	Tick      uint64
	Snapshot  *models.GraphSnapshot
	Positions models.Positions
	Hover     string
	Viewport  models.Viewport
}

// OutputOptions defines rendering configuration options
type OutputOptions struct {
	Format     string  // Output format (png, svg, ascii, json, dot)
	Width      float64 // Width of the output
	Height     float64 // Height of the output
	PixelRatio float64 // Device pixel ratio for raster output
	Style      Style   // Canvas palette
	FontSize   float64 // Font size for SVG labels
	ShowLabels bool    // Show node labels
	Timestamp  bool    // Include timestamp in text outputs
	Title      string  // Optional heading for text outputs
}

// Renderer interface defines methods that all rendering backends must implement
type Renderer interface {
	// Render creates a visualization of the frame using the provided options
	Render(frame *Frame, options *OutputOptions) ([]byte, error)

	// Name returns the name of the renderer
	Name() string

	// Description returns a description of the renderer
	Description() string
}

// NewDefaultOptions creates a default set of output options
func NewDefaultOptions(format string) *OutputOptions {
	return &OutputOptions{
		Format:     format,
		Width:      800,
		Height:     400,
		PixelRatio: 1,
		Style:      DefaultStyle(),
		FontSize:   12,
		ShowLabels: true,
		Timestamp:  false,
	}
}

// GetRenderer returns the appropriate renderer based on format
func GetRenderer(format string) (Renderer, error) {
	switch strings.ToLower(format) {
	case "png":
		return &PNGRenderer{}, nil
	case "svg":
		return &SVGRenderer{}, nil
	case "ascii":
		return &ASCIIRenderer{}, nil
	case "json":
		return &JSONRenderer{}, nil
	case "dot":
		return &DOTRenderer{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// ContentType returns the MIME type for a format
func ContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "svg":
		return "image/svg+xml"
	case "json":
		return "application/json"
	default:
		return "text/plain; charset=utf-8"
	}
}

// placed pairs a node with its resolved position
type placed struct {
	node    models.Node
	pos     models.Point
	hovered bool
}

// placedNodes returns the frame's nodes that have a position, in snapshot order
func placedNodes(frame *Frame) []placed {
	if frame.Snapshot == nil || frame.Positions == nil {
		return nil
	}
	out := make([]placed, 0, len(frame.Snapshot.Nodes))
	for _, node := range frame.Snapshot.Nodes {
		if p, ok := frame.Positions.Lookup(node.ID); ok {
			out = append(out, placed{node: node, pos: p, hovered: frame.Hover != "" && frame.Hover == node.ID})
		}
	}
	return out
}

// resolvedEdges calls fn for every positive edge whose endpoints both have a position
func resolvedEdges(frame *Frame, fn func(edge models.Edge, src, dst models.Point)) {
	if frame.Snapshot == nil || frame.Positions == nil {
		return
	}
	for _, edge := range frame.Snapshot.Edges {
		if edge.Strength <= 0 {
			continue
		}
		src, ok := frame.Positions.Lookup(edge.Source)
		if !ok {
			continue
		}
		dst, ok := frame.Positions.Lookup(edge.Target)
		if !ok {
			continue
		}
		fn(edge, src, dst)
	}
}

// PNGRenderer rasterizes the frame with the canvas renderer
type PNGRenderer struct{}

// Name returns the name of the renderer
func (r *PNGRenderer) Name() string {
	return "PNG Renderer"
}

// Description returns a description of the renderer
func (r *PNGRenderer) Description() string {
	return "Rasterizes the frame to a PNG image"
}

// Render creates a PNG representation of the frame
func (r *PNGRenderer) Render(frame *Frame, options *OutputOptions) ([]byte, error) {
	vp := models.Viewport{Width: options.Width, Height: options.Height}
	if vp.Degenerate() {
		return nil, fmt.Errorf("cannot rasterize a %.0fx%.0f viewport", vp.Width, vp.Height)
	}

	surface := NewSurface(vp, options.PixelRatio)
	positions := frame.Positions
	if positions == nil {
		positions = models.PointMap{}
	}
	NewCanvasRenderer(options.Style).Draw(surface, frame.Snapshot, positions, frame.Hover)

	var buf bytes.Buffer
	if err := surface.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	return buf.Bytes(), nil
}

// SVGRenderer outputs SVG format
type SVGRenderer struct{}

// Name returns the name of the renderer
func (r *SVGRenderer) Name() string {
	return "SVG Renderer"
}

// Description returns a description of the renderer
func (r *SVGRenderer) Description() string {
	return "Renders frames as Scalable Vector Graphics (SVG) for high-quality vector output"
}

// Render creates an SVG representation of the frame
func (r *SVGRenderer) Render(frame *Frame, options *OutputOptions) ([]byte, error) {
	var buf bytes.Buffer
	style := options.Style

	fmt.Fprintf(&buf, `<?xml version="1.0" encoding="UTF-8" standalone="no"?>
<svg width="%f" height="%f" viewBox="0 0 %f %f" xmlns="http://www.w3.org/2000/svg">
`, options.Width, options.Height, options.Width, options.Height)
	if style.Background != "" {
		fmt.Fprintf(&buf, "<rect width=\"100%%\" height=\"100%%\" fill=\"%s\"/>\n", cssColor(ParseColor(style.Background)))
	}

	// One radial gradient per node for the glow
	nodes := placedNodes(frame)
	buf.WriteString("<defs>\n")
	for i, p := range nodes {
		fill := ParseColor(p.node.Color)
		fmt.Fprintf(&buf, `  <radialGradient id="glow-%d"><stop offset="0" stop-color="%s"/><stop offset="1" stop-color="%s" stop-opacity="0"/></radialGradient>
`, i, cssColor(withAlpha(fill, 0x40/255.0)), cssColor(fill))
	}
	buf.WriteString("</defs>\n")

	edgeColor := ParseColor(style.EdgeColor)
	resolvedEdges(frame, func(edge models.Edge, src, dst models.Point) {
		fmt.Fprintf(&buf, `<line x1="%f" y1="%f" x2="%f" y2="%f" stroke="%s" stroke-width="%f"/>
`, src.X, src.Y, dst.X, dst.Y, cssColor(withAlpha(edgeColor, edge.Strength*0.3)), edge.Strength*2)
	})

	for i, p := range nodes {
		fill := ParseColor(p.node.Color)
		radius := p.node.Size
		stroke := cssColor(withAlpha(fill, 0x80/255.0))
		strokeWidth := 2.0
		if p.hovered {
			radius *= style.HoverScale
			stroke = cssColor(ParseColor(style.HoverStroke))
			strokeWidth = 3
		}

		fmt.Fprintf(&buf, `<circle cx="%f" cy="%f" r="%f" fill="url(#glow-%d)"/>
`, p.pos.X, p.pos.Y, radius*2, i)
		fmt.Fprintf(&buf, `<circle cx="%f" cy="%f" r="%f" fill="%s" stroke="%s" stroke-width="%f"/>
`, p.pos.X, p.pos.Y, radius, cssColor(fill), stroke, strokeWidth)

		if options.ShowLabels && p.node.Label != "" {
			fmt.Fprintf(&buf, `<text x="%f" y="%f" font-family="sans-serif" font-size="%f" fill="%s" text-anchor="middle" dominant-baseline="middle">%s</text>
`, p.pos.X, p.pos.Y+radius+style.LabelOffset, options.FontSize, cssColor(ParseColor(style.LabelColor)), escapeXML(p.node.Label))
		}
	}

	if options.Timestamp {
		fmt.Fprintf(&buf, `<text x="5" y="%f" font-family="sans-serif" font-size="8" fill="#808080">%d · %s</text>
`, options.Height-5, frame.Key, time.Now().Format("2006-01-02 15:04:05"))
	}

	buf.WriteString(`</svg>`)
	return buf.Bytes(), nil
}

// ASCIIRenderer outputs ASCII art format
type ASCIIRenderer struct{}

// Name returns the name of the renderer
func (r *ASCIIRenderer) Name() string {
	return "ASCII Renderer"
}

// Description returns a description of the renderer
func (r *ASCIIRenderer) Description() string {
	return "Renders frames as ASCII art for terminal or text-based output"
}

// Cell size of the ASCII grid in logical pixels
const (
	CellWidth  = 10.0
	CellHeight = 20.0
)

// Render creates an ASCII representation of the frame
func (r *ASCIIRenderer) Render(frame *Frame, options *OutputOptions) ([]byte, error) {
	width := int(options.Width / CellWidth)
	height := int(options.Height / CellHeight)

	// Ensure minimum size
	width = max(width, 12)
	height = max(height, 6)

	grid := make([][]rune, height)
	for i := range grid {
		grid[i] = make([]rune, width)
		for j := range grid[i] {
			grid[i][j] = ' '
		}
	}

	toCell := func(p models.Point) (int, int) {
		x := clamp(int(p.X/CellWidth), 0, width-1)
		y := clamp(int(p.Y/CellHeight), 0, height-1)
		return x, y
	}

	resolvedEdges(frame, func(edge models.Edge, src, dst models.Point) {
		x1, y1 := toCell(src)
		x2, y2 := toCell(dst)
		mark := '·'
		if edge.Strength >= 0.8 {
			mark = '•'
		}
		drawLine(grid, x1, y1, x2, y2, mark)
	})

	for _, p := range placedNodes(frame) {
		x, y := toCell(p.pos)
		symbol := 'o'
		if p.node.Size >= 25 {
			symbol = 'O'
		}
		if p.hovered {
			symbol = '@'
		}
		grid[y][x] = symbol

		// Label below the node, centered when there is room
		if options.ShowLabels && p.node.Label != "" && y+1 < height {
			label := []rune(p.node.Label)
			if p.hovered {
				label = []rune("[" + p.node.Label + "]")
			}
			start := clamp(x-len(label)/2, 0, max(width-len(label), 0))
			for i := 0; i < len(label) && start+i < width; i++ {
				grid[y+1][start+i] = label[i]
			}
		}
	}

	var result strings.Builder
	if options.Title != "" {
		result.WriteString(options.Title)
		result.WriteRune('\n')
	}
	for _, row := range grid {
		result.WriteString(strings.TrimRight(string(row), " "))
		result.WriteRune('\n')
	}
	if options.Timestamp {
		result.WriteString(time.Now().Format("2006-01-02 15:04"))
		result.WriteRune('\n')
	}

	return []byte(result.String()), nil
}

// JSONRenderer outputs the frame as JSON for streaming clients
type JSONRenderer struct{}

// Name returns the name of the renderer
func (r *JSONRenderer) Name() string {
	return "JSON Renderer"
}

// Description returns a description of the renderer
func (r *JSONRenderer) Description() string {
	return "Renders frames as JSON data for machine consumption or browser canvases"
}

// FrameJSON is the wire shape of a rendered frame
type FrameJSON struct {
	Key    int        `json:"key"`
	Tick   uint64     `json:"tick"`
	Hover  string     `json:"hover,omitempty"`
	Width  float64    `json:"width"`
	Height float64    `json:"height"`
	Nodes  []NodeJSON `json:"nodes"`
	Links  []LinkJSON `json:"links"`
}

// NodeJSON is a positioned node on the wire
type NodeJSON struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	X       float64 `json:"x"`
	Y       float64 `json:"y"`
	Size    float64 `json:"size"`
	Color   string  `json:"color"`
	Hovered bool    `json:"hovered,omitempty"`
}

// LinkJSON is a resolved edge on the wire
type LinkJSON struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
}

// Encode converts a frame into its wire shape
func Encode(frame *Frame) FrameJSON {
	out := FrameJSON{
		Key:    frame.Key,
		Tick:   frame.Tick,
		Hover:  frame.Hover,
		Width:  frame.Viewport.Width,
		Height: frame.Viewport.Height,
		Nodes:  []NodeJSON{},
		Links:  []LinkJSON{},
	}
	for _, p := range placedNodes(frame) {
		out.Nodes = append(out.Nodes, NodeJSON{
			ID:      p.node.ID,
			Label:   p.node.Label,
			X:       round2(p.pos.X),
			Y:       round2(p.pos.Y),
			Size:    p.node.Size,
			Color:   p.node.Color,
			Hovered: p.hovered,
		})
	}
	resolvedEdges(frame, func(edge models.Edge, _, _ models.Point) {
		out.Links = append(out.Links, LinkJSON{Source: edge.Source, Target: edge.Target, Strength: edge.Strength})
	})
	return out
}

// Render creates a JSON representation of the frame
func (r *JSONRenderer) Render(frame *Frame, options *OutputOptions) ([]byte, error) {
	return json.Marshal(Encode(frame))
}

// DOTRenderer outputs Graphviz DOT format
type DOTRenderer struct{}

// Name returns the name of the renderer
func (r *DOTRenderer) Name() string {
	return "DOT Renderer"
}

// Description returns a description of the renderer
func (r *DOTRenderer) Description() string {
	return "Renders frames in Graphviz DOT format with pinned positions"
}

// Render creates a DOT representation of the frame
func (r *DOTRenderer) Render(frame *Frame, options *OutputOptions) ([]byte, error) {
	var buf bytes.Buffer

	fmt.Fprintf(&buf, "graph \"%d\" {\n", frame.Key)
	fmt.Fprintf(&buf, "  graph [size=\"%f,%f\"];\n", options.Width/72.0, options.Height/72.0)
	buf.WriteString("  node [shape=circle, fontname=\"Arial\", style=filled];\n")

	for _, p := range placedNodes(frame) {
		label := p.node.Label
		if label == "" {
			label = p.node.ID
		}
		penwidth := 1.0
		if p.hovered {
			penwidth = 3.0
		}
		// DOT's y axis points up
		fmt.Fprintf(&buf, "  %q [label=%q, fillcolor=%q, width=%f, penwidth=%f, pos=\"%f,%f!\"];\n",
			p.node.ID, label, p.node.Color, p.node.Size/36.0, penwidth, p.pos.X/72.0, (options.Height-p.pos.Y)/72.0)
	}

	resolvedEdges(frame, func(edge models.Edge, _, _ models.Point) {
		fmt.Fprintf(&buf, "  %q -- %q [penwidth=%f];\n", edge.Source, edge.Target, edge.Strength*2)
	})

	buf.WriteString("}\n")
	return buf.Bytes(), nil
}

// Helper functions

// Clamp a value between lo and hi
func clamp(val, lo, hi int) int {
	if val < lo {
		return lo
	}
	if val > hi {
		return hi
	}
	return val
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func escapeXML(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '<':
			b.WriteString("&lt;")
		case '>':
			b.WriteString("&gt;")
		case '&':
			b.WriteString("&amp;")
		case '"':
			b.WriteString("&quot;")
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Draw a line on the ASCII grid using Bresenham's algorithm
func drawLine(grid [][]rune, x1, y1, x2, y2 int, mark rune) {
	dx := abs(x2 - x1)
	dy := -abs(y2 - y1)
	sx := 1
	if x1 >= x2 {
		sx = -1
	}
	sy := 1
	if y1 >= y2 {
		sy = -1
	}
	err := dx + dy

	for {
		if y1 >= 0 && y1 < len(grid) && x1 >= 0 && x1 < len(grid[y1]) && grid[y1][x1] == ' ' {
			grid[y1][x1] = mark
		}

		if x1 == x2 && y1 == y2 {
			break
		}

		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x1 += sx
		}
		if e2 <= dx {
			err += dx
			y1 += sy
		}
	}
}

// Absolute value of an integer
func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
