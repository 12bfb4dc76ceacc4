// Package ingest turns concept data (backend responses, offline datasets, JSON,
// CSV and plain-text relation files) into timelines of graph snapshots.
package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/render"
)

// ErrNoSnapshots is returned when input data yields no time keys
var ErrNoSnapshots = errors.New("no snapshots in input")

// DataProcessor defines the interface that all data processors must implement
type DataProcessor interface {
	// ProcessData takes raw data bytes and returns a concept with its timeline
	ProcessData(data []byte) (*models.Concept, error)

	// GetName returns the name of the processor
	GetName() string
}

// Palette provides color schemes for graph visualization
type Palette struct {
	NodeColors []string
	MainColor  string
	EdgeColor  string
	LabelColor string
	Background string
}

// DefaultPalette returns the cyan/blue/violet scheme used by the offline datasets
func DefaultPalette() *Palette {
	return &Palette{
		NodeColors: []string{
			"#3b82f6", // Blue
			"#8b5cf6", // Violet
			"#06b6d4", // Cyan
		},
		MainColor:  "#06b6d4",
		EdgeColor:  "#06b6d4",
		LabelColor: "#e2e8f0",
	}
}

// SurrealPalette returns a surrealist-inspired color palette
func SurrealPalette() *Palette {
	return &Palette{
		NodeColors: []string{
			"#FF6D00", // Amber
			"#2979FF", // Blue
			"#00E676", // Green
			"#F50057", // Pink
			"#651FFF", // Deep Purple
			"#C6FF00", // Lime
			"#FF3D00", // Deep Orange
			"#00B0FF", // Light Blue
			"#76FF03", // Light Green
		},
		MainColor:  "#F50057",
		EdgeColor:  "#9C27B0",
		LabelColor: "#FAFAFA",
		Background: "#212121", // Dark background for contrast
	}
}

// GetPalette returns a palette by name
func GetPalette(name string) (*Palette, error) {
	switch strings.ToLower(name) {
	case "", "default":
		return DefaultPalette(), nil
	case "surreal":
		return SurrealPalette(), nil
	default:
		return nil, fmt.Errorf("unknown palette: %s", name)
	}
}

// Color returns the i-th node color, cycling through the palette
func (p *Palette) Color(i int) string {
	return p.NodeColors[i%len(p.NodeColors)]
}

// Style returns a canvas style matching the palette
func (p *Palette) Style() render.Style {
	style := render.DefaultStyle()
	style.EdgeColor = p.EdgeColor
	style.LabelColor = p.LabelColor
	style.Background = p.Background
	return style
}

// Node sizes for processors that derive size from connectivity
const (
	minNodeSize = 16.0
	maxNodeSize = 30.0
)

// ConceptFile is the on-disk JSON shape of a concept: one node/link set per
// time key plus the narrative and pattern metadata
type ConceptFile struct {
	Concept   string                     `json:"concept"`
	TimeRange string                     `json:"timeRange"`
	Narrative models.Narrative           `json:"narrative"`
	Evolution map[int]EvolutionEntry     `json:"evolution"`
	Patterns  map[int]models.PatternPair `json:"patterns,omitempty"`
}

// EvolutionEntry is the graph for one time key
type EvolutionEntry struct {
	Nodes []models.Node `json:"nodes"`
	Links []models.Edge `json:"links"`
}

// ToFile converts a concept back into its JSON file shape
func ToFile(c *models.Concept) ConceptFile {
	out := ConceptFile{
		Concept:   c.Name,
		TimeRange: c.TimeRange,
		Narrative: c.Narrative,
		Evolution: make(map[int]EvolutionEntry),
		Patterns:  c.Patterns,
	}
	if c.Timeline == nil {
		return out
	}
	for _, key := range c.Timeline.Keys() {
		s, _ := c.Timeline.Snapshot(key)
		out.Evolution[key] = EvolutionEntry{Nodes: s.Nodes, Links: s.Edges}
	}
	return out
}

// JSONProcessor handles concept JSON files
type JSONProcessor struct {
	palette *Palette
}

// NewJSONProcessor creates a new JSON processor with the specified palette
func NewJSONProcessor(palette *Palette) *JSONProcessor {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &JSONProcessor{palette: palette}
}

// GetName returns the name of the processor
func (p *JSONProcessor) GetName() string {
	return "JSON Processor"
}

// ProcessData processes JSON data
func (p *JSONProcessor) ProcessData(data []byte) (*models.Concept, error) {
	var file ConceptFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("error parsing JSON: %w", err)
	}
	if len(file.Evolution) == 0 {
		return nil, ErrNoSnapshots
	}

	timeline := models.NewTimeline()
	for key, entry := range file.Evolution {
		snapshot := models.NewSnapshot(key)
		for i, n := range entry.Nodes {
			node := n
			if node.Size <= 0 {
				node.Size = models.NewNode(n.ID, n.Label).Size
			}
			if node.Color == "" {
				node.Color = p.palette.Color(i)
			}
			if node.Label == "" {
				node.Label = node.ID
			}
			if err := snapshot.AddNode(&node); err != nil {
				return nil, fmt.Errorf("key %d: %w", key, err)
			}
		}
		// Dangling links are kept; the simulation and renderer skip them
		for _, l := range entry.Links {
			snapshot.AddEdge(models.NewEdge(l.Source, l.Target, l.Strength))
		}
		timeline.Put(snapshot)
	}

	return &models.Concept{
		Name:      file.Concept,
		TimeRange: file.TimeRange,
		Narrative: file.Narrative,
		Timeline:  timeline,
		Patterns:  file.Patterns,
		Source:    "file",
	}, nil
}

// graphBuilder accumulates nodes and links per time key for the edge-list formats
type graphBuilder struct {
	palette   *Palette
	snapshots map[int]*models.GraphSnapshot
	nodes     map[int]map[string]*models.Node
	order     map[int][]string  // first appearance per key
	colors    map[string]string // stable color per node ID across keys
}

func newGraphBuilder(palette *Palette) *graphBuilder {
	return &graphBuilder{
		palette:   palette,
		snapshots: make(map[int]*models.GraphSnapshot),
		nodes:     make(map[int]map[string]*models.Node),
		order:     make(map[int][]string),
		colors:    make(map[string]string),
	}
}

func (b *graphBuilder) node(key int, id string) *models.Node {
	if _, ok := b.snapshots[key]; !ok {
		b.snapshots[key] = models.NewSnapshot(key)
		b.nodes[key] = make(map[string]*models.Node)
	}
	if n, ok := b.nodes[key][id]; ok {
		return n
	}
	color, ok := b.colors[id]
	if !ok {
		color = b.palette.Color(len(b.colors))
		b.colors[id] = color
	}
	n := models.NewNode(id, id)
	n.SetAppearance(minNodeSize, color)
	b.nodes[key][id] = n
	b.order[key] = append(b.order[key], id)
	return n
}

func (b *graphBuilder) link(key int, source, target string, strength float64) {
	src := b.node(key, source)
	dst := b.node(key, target)

	// Increase node size based on number of connections
	src.Size += 2
	dst.Size += 2

	b.snapshots[key].AddEdge(models.NewEdge(source, target, strength))
}

// build materializes the timeline, keeping node order of first appearance
func (b *graphBuilder) build() (*models.Timeline, error) {
	if len(b.snapshots) == 0 {
		return nil, ErrNoSnapshots
	}
	timeline := models.NewTimeline()
	for key, snapshot := range b.snapshots {
		for _, id := range b.order[key] {
			n := b.nodes[key][id]
			n.Size = min(max(n.Size, minNodeSize), maxNodeSize)
			if err := snapshot.AddNode(n); err != nil {
				return nil, err
			}
		}
		timeline.Put(snapshot)
	}
	return timeline, nil
}

// CSVProcessor handles CSV edge lists with a time key column
type CSVProcessor struct {
	palette *Palette
}

// NewCSVProcessor creates a new CSV processor with the specified palette
func NewCSVProcessor(palette *Palette) *CSVProcessor {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &CSVProcessor{palette: palette}
}

// GetName returns the name of the processor
func (p *CSVProcessor) GetName() string {
	return "CSV Processor"
}

// ProcessData processes CSV data
func (p *CSVProcessor) ProcessData(data []byte) (*models.Concept, error) {
	reader := csv.NewReader(bytes.NewReader(data))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("error reading CSV header: %w", err)
	}

	// Find key, source, target and strength columns
	keyIdx, sourceIdx, targetIdx, strengthIdx := -1, -1, -1, -1
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(col)) {
		case "key", "year", "era":
			keyIdx = i
		case "source", "from", "src":
			sourceIdx = i
		case "target", "to", "dst":
			targetIdx = i
		case "strength", "weight", "value", "similarity":
			strengthIdx = i
		}
	}
	if keyIdx == -1 || sourceIdx == -1 || targetIdx == -1 {
		return nil, fmt.Errorf("CSV must contain key, source and target columns")
	}

	builder := newGraphBuilder(p.palette)

	for line := 2; ; line++ {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error reading CSV row: %w", err)
		}

		key, err := parseKey(row[keyIdx])
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		// Default strength when the column is missing or unparsable
		strength := 0.5
		if strengthIdx >= 0 && strengthIdx < len(row) {
			if v, err := strconv.ParseFloat(strings.TrimSpace(row[strengthIdx]), 64); err == nil {
				strength = v
			}
		}

		source, target := strings.TrimSpace(row[sourceIdx]), strings.TrimSpace(row[targetIdx])
		builder.link(key, source, target, strength)
	}

	timeline, err := builder.build()
	if err != nil {
		return nil, err
	}
	return newFileConcept(timeline), nil
}

// LogProcessor handles plain-text relation files. A "[key]" line starts a
// snapshot; each following line names one relation, e.g. "A -> B" or
// "X connected to Y", optionally followed by "(0.8)" for the strength.
type LogProcessor struct {
	palette *Palette
}

// NewLogProcessor creates a new log processor with the specified palette
func NewLogProcessor(palette *Palette) *LogProcessor {
	if palette == nil {
		palette = DefaultPalette()
	}
	return &LogProcessor{palette: palette}
}

// GetName returns the name of the processor
func (p *LogProcessor) GetName() string {
	return "Log Processor"
}

// Common separators for relations
var relationSeparators = []string{" -> ", " => ", " connected to ", " connects to ", " links to ", " linked to ", " - "}

// ProcessData processes relation lines
func (p *LogProcessor) ProcessData(data []byte) (*models.Concept, error) {
	builder := newGraphBuilder(p.palette)

	key, haveKey := 0, false
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}

		if strings.HasPrefix(text, "[") && strings.HasSuffix(text, "]") {
			k, err := parseKey(text[1 : len(text)-1])
			if err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
			key, haveKey = k, true
			continue
		}

		strength := 1.0
		if i := strings.LastIndex(text, "("); i > 0 && strings.HasSuffix(text, ")") {
			if v, err := strconv.ParseFloat(strings.TrimSpace(text[i+1:len(text)-1]), 64); err == nil {
				strength = v
				text = strings.TrimSpace(text[:i])
			}
		}

		// Skip if no pattern matched
		var source, target string
		for _, sep := range relationSeparators {
			parts := strings.Split(text, sep)
			if len(parts) == 2 {
				source, target = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
				break
			}
		}
		if source == "" || target == "" {
			continue
		}
		if !haveKey {
			return nil, fmt.Errorf("line %d: relation before any [key] header", line)
		}

		builder.link(key, source, target, strength)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading relations: %w", err)
	}

	timeline, err := builder.build()
	if err != nil {
		return nil, err
	}
	return newFileConcept(timeline), nil
}

func newFileConcept(timeline *models.Timeline) *models.Concept {
	lo, hi, _ := timeline.Range()
	return &models.Concept{
		TimeRange: fmt.Sprintf("%d - %d CE", lo, hi),
		Timeline:  timeline,
		Source:    "file",
	}
}

// parseKey accepts plain integers and era labels such as "1900s"
func parseKey(s string) (int, error) {
	s = strings.TrimSpace(s)
	if k, err := strconv.Atoi(s); err == nil {
		return k, nil
	}
	if yearPattern.MatchString(s) {
		return EraToYear(s), nil
	}
	return 0, fmt.Errorf("invalid time key %q", s)
}

// GetProcessor returns the appropriate processor for the given format
func GetProcessor(format string) (DataProcessor, error) {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONProcessor(DefaultPalette()), nil
	case "csv":
		return NewCSVProcessor(DefaultPalette()), nil
	case "log", "txt":
		return NewLogProcessor(DefaultPalette()), nil
	case "surreal-json":
		return NewJSONProcessor(SurrealPalette()), nil
	case "surreal-csv":
		return NewCSVProcessor(SurrealPalette()), nil
	case "surreal-log":
		return NewLogProcessor(SurrealPalette()), nil
	default:
		return nil, fmt.Errorf("unsupported format: %s", format)
	}
}

// ProcessFile reads path and processes it with the processor matching its
// extension. Concepts without a name are named after the file.
func ProcessFile(path string) (*models.Concept, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(path)), ".")
	processor, err := GetProcessor(ext)
	if err != nil {
		return nil, err
	}

	concept, err := processor.ProcessData(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", processor.GetName(), err)
	}
	if concept.Name == "" {
		concept.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	logDangling(path, concept.Timeline)
	return concept, nil
}

// logDangling reports links whose endpoints are missing from their snapshot
func logDangling(path string, timeline *models.Timeline) {
	for _, key := range timeline.Keys() {
		snapshot, err := timeline.Snapshot(key)
		if err != nil {
			continue
		}
		for _, e := range snapshot.DanglingEdges() {
			log.Printf("%s: key %d: link %s -> %s has a missing endpoint", path, key, e.Source, e.Target)
		}
	}
}
