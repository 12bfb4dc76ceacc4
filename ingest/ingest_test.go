package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/TFMV/echoes/client"
	"github.com/TFMV/echoes/models"
)

func TestEraToYear(t *testing.T) {
	tests := []struct {
		era  string
		want int
	}{
		{"1900s", 1940},
		{"1950s", 1990},
		{"1989", 1989},
		{"circa 1800s", 1840},
		{"Ancient", 2000},
	}
	for _, tt := range tests {
		if got := EraToYear(tt.era); got != tt.want {
			t.Errorf("EraToYear(%q) = %d, want %d", tt.era, got, tt.want)
		}
	}
}

func TestTransformTimeline(t *testing.T) {
	shift := 34.6
	tl := &client.TimelineResponse{
		Concept: "freedom",
		Eras: []client.EraData{
			{Era: "1900s", Items: []client.TimelineItem{
				{Text: "national independence movement", Similarity: 0.8},
				{Text: "the war", Similarity: 0},
			}},
			{Era: "1980", Items: []client.TimelineItem{
				{Text: "a b c", Similarity: 0.5},
				{Text: "one", Similarity: 0.1}, {Text: "two", Similarity: 0.1}, {Text: "three", Similarity: 0.1},
				{Text: "four", Similarity: 0.1}, {Text: "five", Similarity: 0.1}, {Text: "six", Similarity: 0.1},
			}},
		},
		SemanticShift:      &shift,
		PrimaryAssociation: &client.PrimaryAssociation{From: "independence", To: "privacy"},
	}

	c, err := TransformTimeline("Freedom", tl, nil)
	if err != nil {
		t.Fatalf("TransformTimeline: %v", err)
	}
	if keys := c.Timeline.Keys(); len(keys) != 2 || keys[0] != 1940 || keys[1] != 1980 {
		t.Fatalf("unexpected keys %v", keys)
	}
	if c.TimeRange != "1940 - 1980 CE" || c.Source != "backend" {
		t.Errorf("unexpected concept header %q %q", c.TimeRange, c.Source)
	}
	if c.Narrative.SemanticShift != 35 || !strings.Contains(c.Narrative.Summary, `from "independence" to "privacy"`) {
		t.Errorf("unexpected narrative %+v", c.Narrative)
	}

	s1940, _ := c.Timeline.Snapshot(1940)
	if s1940.Nodes[0].ID != MainNodeID || s1940.Nodes[0].Size != 30 || s1940.Nodes[0].Label != "Freedom" {
		t.Errorf("unexpected main node %+v", s1940.Nodes[0])
	}
	if n := s1940.Nodes[1]; n.Label != "National" || n.Size != 28 {
		t.Errorf("unexpected item node %+v", n)
	}
	if n := s1940.Nodes[2]; n.Label != "Term 2" || n.Size != 20 {
		t.Errorf("expected fallback label, got %+v", n)
	}
	if s1940.Edges[1].Strength != 0.5 {
		t.Errorf("zero similarity should default to 0.5, got %v", s1940.Edges[1].Strength)
	}

	s1980, _ := c.Timeline.Snapshot(1980)
	if len(s1980.Nodes) != 7 || len(s1980.Edges) != 6 {
		t.Errorf("expected main plus six items, got %d nodes %d edges", len(s1980.Nodes), len(s1980.Edges))
	}
	if p := c.Patterns[1940]; p.Ancient.Title != "Historical Freedom" || p.Modern.Era != "1900s" {
		t.Errorf("unexpected fallback pattern %+v", p)
	}

	if _, err := TransformTimeline("x", &client.TimelineResponse{}, nil); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("expected ErrNoSnapshots, got %v", err)
	}
}

func TestTransformDerivesAssociationsAndSymbols(t *testing.T) {
	tl := &client.TimelineResponse{
		Eras: []client.EraData{
			{Era: "1900s", Items: []client.TimelineItem{{Text: "national sovereignty", Similarity: 0.9}}},
			{Era: "2020", Items: []client.TimelineItem{{Text: "data privacy", Similarity: 0.6}}},
		},
	}
	symbols := &client.SymbolPairsResponse{Pairs: map[string]client.SymbolPair{
		"2020": {Ancient: client.SymbolSide{Title: "Open Padlock", Path: "/img/padlock.png"}},
	}}

	c, err := TransformTimeline("freedom", tl, symbols)
	if err != nil {
		t.Fatal(err)
	}
	if c.Narrative.SemanticShift != 42 {
		t.Errorf("missing shift should default to 42, got %v", c.Narrative.SemanticShift)
	}
	if a := c.Narrative.PrimaryAssociation; a.From != "national" || a.To != "data" {
		t.Errorf("unexpected derived association %+v", a)
	}
	if len(c.Patterns) != 1 || c.Patterns[2020].Ancient.ImagePath != "/img/padlock.png" {
		t.Errorf("unexpected patterns %+v", c.Patterns)
	}

	if got := CalculateSemanticShift(tl.Eras[0].Items, tl.Eras[1].Items); got < 29.99 || got > 30.01 {
		t.Errorf("CalculateSemanticShift = %v, want 30", got)
	}
}

func TestOffline(t *testing.T) {
	names := OfflineConcepts()
	if strings.Join(names, ",") != "ai,circle,freedom" {
		t.Errorf("unexpected offline concepts %v", names)
	}

	c, err := Offline("FREEDOM")
	if err != nil {
		t.Fatalf("Offline: %v", err)
	}
	if c.Name != "Freedom" || c.Source != "offline" {
		t.Errorf("unexpected concept %q from %q", c.Name, c.Source)
	}
	if keys := c.Timeline.Keys(); len(keys) != 3 || keys[0] != 1940 || keys[2] != 2020 {
		t.Errorf("unexpected keys %v", keys)
	}
	s, _ := c.Timeline.Resolve(2023)
	if s.Key != 2020 || len(s.Nodes) != 7 {
		t.Errorf("expected 7 nodes at 2020, got key %d with %d nodes", s.Key, len(s.Nodes))
	}
	if c.Patterns[1980].Modern.Title != "Berlin Wall Fall" {
		t.Errorf("unexpected pattern %+v", c.Patterns[1980])
	}

	g, err := Offline(`Grief "& loss"`)
	if err != nil {
		t.Fatalf("generic: %v", err)
	}
	main, err := g.Timeline.Snapshot(1940)
	if err != nil {
		t.Fatal(err)
	}
	if main.Nodes[0].ID != "main" || main.Nodes[0].Label != `Grief "& loss"` {
		t.Errorf("generic template not filled: %+v", main.Nodes[0])
	}
	if g.Patterns[2020].Modern.Title != `Digital Grief "& loss"` {
		t.Errorf("unexpected generic pattern %+v", g.Patterns[2020])
	}
}

func TestCSVProcessor(t *testing.T) {
	data := `key,source,target,strength
1940,freedom,liberty,0.9
1940,freedom,independence,0.95
1940s,independence,democracy,bogus
2020,freedom,privacy,0.95
`
	c, err := NewCSVProcessor(nil).ProcessData([]byte(data))
	if err != nil {
		t.Fatalf("ProcessData: %v", err)
	}
	if keys := c.Timeline.Keys(); len(keys) != 3 || keys[0] != 1940 || keys[1] != 1980 || keys[2] != 2020 {
		t.Fatalf("unexpected keys %v", keys)
	}

	s, _ := c.Timeline.Snapshot(1940)
	if len(s.Nodes) != 3 || s.Nodes[0].ID != "freedom" || s.Nodes[0].Size != 20 {
		t.Errorf("unexpected 1940 nodes %+v", s.Nodes)
	}
	s80, _ := c.Timeline.Snapshot(1980)
	if s80.Edges[0].Strength != 0.5 {
		t.Errorf("unparsable strength should default to 0.5, got %v", s80.Edges[0].Strength)
	}

	// Same node keeps its color across keys
	s20, _ := c.Timeline.Snapshot(2020)
	if s20.Nodes[0].Color != s.Nodes[0].Color {
		t.Errorf("freedom color changed across keys: %s vs %s", s20.Nodes[0].Color, s.Nodes[0].Color)
	}

	if _, err := NewCSVProcessor(nil).ProcessData([]byte("source,target\na,b\n")); err == nil {
		t.Error("expected error without a key column")
	}
	if _, err := NewCSVProcessor(nil).ProcessData([]byte("key,source,target\n")); !errors.Is(err, ErrNoSnapshots) {
		t.Errorf("expected ErrNoSnapshots, got %v", err)
	}
}

func TestLogProcessor(t *testing.T) {
	data := `# freedom over time
[1940]
freedom -> liberty (0.9)
freedom connected to democracy

[2020]
freedom => privacy
not a relation
`
	c, err := NewLogProcessor(nil).ProcessData([]byte(data))
	if err != nil {
		t.Fatalf("ProcessData: %v", err)
	}
	s, _ := c.Timeline.Snapshot(1940)
	if len(s.Nodes) != 3 || len(s.Edges) != 2 {
		t.Fatalf("unexpected 1940 graph %+v", s)
	}
	if s.Edges[0].Strength != 0.9 || s.Edges[0].Target != "liberty" || s.Edges[1].Strength != 1 {
		t.Errorf("unexpected edges %+v", s.Edges)
	}
	if c.TimeRange != "1940 - 2020 CE" {
		t.Errorf("unexpected time range %q", c.TimeRange)
	}

	if _, err := NewLogProcessor(nil).ProcessData([]byte("a -> b\n")); err == nil {
		t.Error("expected error for relation before a key header")
	}
}

func TestProcessFileAndRoundTrip(t *testing.T) {
	src, err := Offline("circle")
	if err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "circle.json")
	data, err := json.MarshalIndent(ToFile(src), "", "  ")
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}

	c, err := ProcessFile(path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	if c.Name != "Circle" || c.Timeline.Len() != 3 || c.Source != "file" {
		t.Errorf("unexpected concept %q len=%d source=%q", c.Name, c.Timeline.Len(), c.Source)
	}

	if _, err := ProcessFile(filepath.Join(dir, "graph.xml")); err == nil {
		t.Error("expected error for missing file")
	}
	os.WriteFile(filepath.Join(dir, "graph.xml"), []byte("<x/>"), 0644)
	if _, err := ProcessFile(filepath.Join(dir, "graph.xml")); err == nil {
		t.Error("expected error for unsupported extension")
	}
}

func TestProcessFileLogsDanglingLinks(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	path := filepath.Join(t.TempDir(), "ghost.json")
	data := `{"concept":"ghost","evolution":{"1900":{"nodes":[{"id":"a"},{"id":"b"}],
		"links":[{"source":"a","target":"b","strength":0.5},{"source":"a","target":"nowhere","strength":0.5}]}}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	c, err := ProcessFile(path)
	if err != nil {
		t.Fatalf("ProcessFile: %v", err)
	}
	s, _ := c.Timeline.Snapshot(1900)
	if len(s.Edges) != 2 {
		t.Errorf("dangling links should be kept, got %d edges", len(s.Edges))
	}
	out := buf.String()
	if !strings.Contains(out, "key 1900: link a -> nowhere") || strings.Contains(out, "a -> b ") {
		t.Errorf("unexpected log output %q", out)
	}
}

func TestBackendProviderFallback(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	strict := NewBackendProvider(client.NewClient(server.URL), 10, false)
	if _, err := strict.Load(context.Background(), "freedom"); err == nil {
		t.Error("expected error without fallback")
	}

	lenient := NewBackendProvider(client.NewClient(server.URL), 10, true)
	c, err := lenient.Load(context.Background(), "freedom")
	if err != nil {
		t.Fatalf("Load with fallback: %v", err)
	}
	if c.Source != "offline" || c.Name != "Freedom" {
		t.Errorf("expected offline Freedom, got %q from %q", c.Name, c.Source)
	}
}

func TestBackendProviderLoadsFromBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/timeline":
			w.Write([]byte(`{"concept":"tide","eras":[{"era":"2020","items":[{"text":"ocean currents","similarity":0.7}]}]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := NewBackendProvider(client.NewClient(server.URL), 0, true).Load(context.Background(), "tide")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Source != "backend" || c.Timeline.Len() != 1 {
		t.Errorf("expected backend concept, got %q with %d snapshots", c.Source, c.Timeline.Len())
	}
}

func TestWatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "concept.csv")
	if err := os.WriteFile(path, []byte("key,source,target\n1940,a,b\n"), 0644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *models.Concept, 4)
	done := make(chan error, 1)
	go func() { done <- Watch(ctx, path, func(c *models.Concept) { changes <- c }) }()

	// Give the watcher time to register before writing
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte("key,source,target\n1940,a,b\n2020,a,c\n"), 0644); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-changes:
		if c.Timeline.Len() != 2 {
			t.Errorf("expected reloaded timeline with 2 keys, got %d", c.Timeline.Len())
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload after write")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Watch returned %v", err)
	}
}
