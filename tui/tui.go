// Package tui shows a live concept graph in the terminal. The bubbletea update
// loop owns the view and advances it on every tick.
package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/TFMV/echoes/models"
	"github.com/TFMV/echoes/physics"
	"github.com/TFMV/echoes/render"
	"github.com/TFMV/echoes/viewer"
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#06b6d4"))
	keyStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	activeStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8b5cf6"))
	hoverStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("220"))
	graphStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e2e8f0"))
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
)

// Lines above and below the graph
const (
	headerLines = 2
	footerLines = 2
	minRows     = 6
)

// KeyMap defines the keyboard shortcuts
type KeyMap struct {
	Prev  key.Binding
	Next  key.Binding
	Pause key.Binding
	Save  key.Binding
	Help  key.Binding
	Quit  key.Binding
}

// ShortHelp implements help.KeyMap
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Prev, k.Next, k.Pause, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{{k.Prev, k.Next}, {k.Pause, k.Save}, {k.Help, k.Quit}}
}

// DefaultKeyMap holds the default bindings
var DefaultKeyMap = KeyMap{
	Prev: key.NewBinding(
		key.WithKeys("left", "h"),
		key.WithHelp("←/h", "earlier"),
	),
	Next: key.NewBinding(
		key.WithKeys("right", "l"),
		key.WithHelp("→/l", "later"),
	),
	Pause: key.NewBinding(
		key.WithKeys(" ", "p"),
		key.WithHelp("space", "pause"),
	),
	Save: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "save png"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("ctrl+c", "q", "esc"),
		key.WithHelp("q", "quit"),
	),
}

// Options configure the terminal viewer
type Options struct {
	Interval   time.Duration
	Layout     physics.Layout
	Placement  physics.Placement
	Style      render.Style
	PixelRatio float64
	ShowLabels bool
}

// Model is the bubbletea model
type Model struct {
	concept  *models.Concept
	view     *viewer.View
	options  Options
	ascii    render.ASCIIRenderer
	keys     KeyMap
	help     help.Model
	cols     int
	rows     int
	width    int
	paused   bool
	status   string
	quitting bool
}

type tickMsg time.Time

// New creates a model over concept, starting at its latest key
func New(concept *models.Concept, opts Options) (Model, error) {
	if opts.Interval <= 0 {
		opts.Interval = 16 * time.Millisecond
	}

	m := Model{
		concept: concept,
		options: opts,
		keys:    DefaultKeyMap,
		help:    help.New(),
		cols:    80,
		rows:    20,
		width:   80,
	}

	vp := m.viewport()
	view, err := viewer.New(concept.Timeline, viewer.Options{
		Layout:    opts.Layout,
		Placement: opts.Placement,
		Style:     opts.Style,
		Canvas:    render.NewSurface(vp, opts.PixelRatio),
		Viewport:  vp,
	})
	if err != nil {
		return m, err
	}
	if err := view.Reset(); err != nil {
		return m, err
	}
	m.view = view
	return m, nil
}

// Viewer returns the underlying view
func (m Model) Viewer() *viewer.View {
	return m.view
}

func (m Model) viewport() models.Viewport {
	return models.Viewport{Width: float64(m.cols) * render.CellWidth, Height: float64(m.rows) * render.CellHeight}
}

func tick(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// Init starts the frame loop
func (m Model) Init() tea.Cmd {
	return tick(m.options.Interval)
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		m.cols = max(msg.Width, 12)
		m.rows = max(msg.Height-headerLines-footerLines, minRows)
		vp := m.viewport()
		m.view.Resize(vp, render.NewSurface(vp, m.options.PixelRatio))
		m.view.Reset()
		return m, nil

	case tickMsg:
		if !m.paused {
			m.view.Tick()
		}
		return m, tick(m.options.Interval)

	case tea.MouseMsg:
		m.pointer(msg)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}
	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.Prev):
		m.step(-1)
	case key.Matches(msg, m.keys.Next):
		m.step(1)
	case key.Matches(msg, m.keys.Pause):
		m.paused = !m.paused
	case key.Matches(msg, m.keys.Help):
		m.help.ShowAll = !m.help.ShowAll
	case key.Matches(msg, m.keys.Save):
		m.status = m.save()
	}
	return m, nil
}

// step moves to the neighbouring time key
func (m *Model) step(delta int) {
	keys := m.view.Keys()
	current := m.view.CurrentKey()
	for i, k := range keys {
		if k != current {
			continue
		}
		next := min(max(i+delta, 0), len(keys)-1)
		if next != i {
			if _, err := m.view.SetTimeKey(keys[next]); err != nil {
				m.status = err.Error()
				return
			}
			m.view.Reset()
		}
		return
	}
}

// pointer maps a terminal cell to the centre of its pixel area
func (m Model) pointer(msg tea.MouseMsg) {
	row := msg.Y - headerLines
	if row < 0 || row >= m.rows || msg.X >= m.cols {
		m.view.PointerLeave()
		return
	}
	m.view.PointerMove(models.Point{
		X: (float64(msg.X) + 0.5) * render.CellWidth,
		Y: (float64(row) + 0.5) * render.CellHeight,
	})
}

func (m Model) save() string {
	saver, ok := m.view.Canvas().(interface{ SavePNG(string) error })
	if !ok {
		return "canvas cannot be saved"
	}
	path := fmt.Sprintf("echoes-%s-%d.png", strings.ToLower(m.concept.Name), m.view.CurrentKey())
	if err := saver.SavePNG(path); err != nil {
		return "save failed: " + err.Error()
	}
	return "saved " + path
}

// View renders the terminal screen
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder

	// Header: title and the key strip
	title := titleStyle.Render("Echoes · " + m.concept.Name)
	if m.concept.TimeRange != "" {
		title += " " + dimStyle.Render(m.concept.TimeRange)
	}
	if m.paused {
		title += " " + hoverStyle.Render("(paused)")
	}
	b.WriteString(title + "\n")

	current := m.view.CurrentKey()
	var strip []string
	for _, k := range m.view.Keys() {
		if k == current {
			strip = append(strip, activeStyle.Render(fmt.Sprintf("[%d]", k)))
		} else {
			strip = append(strip, keyStyle.Render(fmt.Sprintf(" %d ", k)))
		}
	}
	line := strings.Join(strip, " ")
	if hover := m.hoverLabel(); hover != "" {
		line += "  " + hoverStyle.Render("◆ "+hover)
	}
	b.WriteString(line + "\n")

	// Graph
	vp := m.viewport()
	frame, _ := m.ascii.Render(m.view.Frame(), &render.OutputOptions{
		Format:     "ascii",
		Width:      vp.Width,
		Height:     vp.Height,
		ShowLabels: m.options.ShowLabels,
	})
	b.WriteString(graphStyle.Render(strings.TrimRight(string(frame), "\n")) + "\n")

	// Footer: narrative or status, then help
	footer := m.concept.Narrative.Summary
	if m.status != "" {
		footer = m.status
	}
	b.WriteString(dimStyle.MaxWidth(m.width).Render(footer) + "\n")
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

// Neighbours listed next to the hovered label
const maxNeighbours = 3

// hoverLabel describes the hovered node with its degree and neighbours
func (m Model) hoverLabel() string {
	id := m.view.Hover()
	if id == "" {
		return ""
	}
	snapshot := m.view.Snapshot()
	if snapshot == nil {
		return id
	}
	node, err := snapshot.FindNodeByID(id)
	if err != nil {
		return id
	}

	label := fmt.Sprintf("%s · %d links", node.Label, snapshot.Degree(id))
	var names []string
	for _, n := range snapshot.FindConnectedNodes(id) {
		if len(names) == maxNeighbours {
			names = append(names, "…")
			break
		}
		names = append(names, n.Label)
	}
	if len(names) > 0 {
		label += ": " + strings.Join(names, ", ")
	}
	return label
}

// Run starts the program and blocks until the user quits
func Run(concept *models.Concept, opts Options) error {
	m, err := New(concept, opts)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseAllMotion()).Run()
	return err
}
