package interaction

import (
	"testing"

	"github.com/TFMV/echoes/models"
)

var bounds = models.Viewport{Width: 400, Height: 400}

func fixture() ([]models.Node, models.PointMap) {
	nodes := []models.Node{
		{ID: "freedom", Size: 30},
		{ID: "privacy", Size: 26},
		{ID: "data", Size: 20},
	}
	positions := models.PointMap{
		"freedom": {X: 200, Y: 200},
		"privacy": {X: 230, Y: 200}, // overlaps freedom
		"data":    {X: 60, Y: 320},
	}
	return nodes, positions
}

func TestLocate(t *testing.T) {
	nodes, positions := fixture()

	tests := []struct {
		name    string
		pointer models.Point
		want    string
		found   bool
	}{
		{"exact center", models.Point{X: 60, Y: 320}, "data", true},
		{"inside radius", models.Point{X: 70, Y: 330}, "data", true},
		{"on the rim is outside", models.Point{X: 80, Y: 320}, "", false},
		{"overlap prefers snapshot order", models.Point{X: 220, Y: 200}, "freedom", true},
		{"second node outside first", models.Point{X: 250, Y: 200}, "privacy", true},
		{"far from everything", models.Point{X: 380, Y: 20}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Locate(tt.pointer, nodes, positions)
			if ok != tt.found || got != tt.want {
				t.Errorf("Locate(%+v) = %q, %v; want %q, %v", tt.pointer, got, ok, tt.want, tt.found)
			}
		})
	}
}

func TestLocateSkipsNodesWithoutPosition(t *testing.T) {
	nodes := []models.Node{{ID: "ghost", Size: 500}, {ID: "real", Size: 10}}
	got, ok := Locate(models.Point{X: 5, Y: 5}, nodes, models.PointMap{"real": {X: 5, Y: 5}})
	if !ok || got != "real" {
		t.Errorf("expected real, got %q", got)
	}
}

func TestTrackerMove(t *testing.T) {
	nodes, positions := fixture()
	var changes []string
	tracker := NewTracker(func(id string) { changes = append(changes, id) })

	if tracker.Hover() != "" {
		t.Fatal("new tracker should have no hover target")
	}

	tracker.Move(models.Point{X: 60, Y: 320}, bounds, nodes, positions)
	tracker.Move(models.Point{X: 61, Y: 321}, bounds, nodes, positions)
	if tracker.Hover() != "data" {
		t.Errorf("expected hover on data, got %q", tracker.Hover())
	}

	// Outside the surface nothing is hovered even if a node would match
	positions["data"] = models.Point{X: 0, Y: 0}
	tracker.Move(models.Point{X: -5, Y: -5}, bounds, nodes, positions)
	if tracker.Hover() != "" {
		t.Errorf("pointer outside surface should clear hover, got %q", tracker.Hover())
	}

	tracker.Move(models.Point{X: 200, Y: 200}, bounds, nodes, positions)
	tracker.Clear()
	if tracker.Hover() != "" {
		t.Error("Clear should drop the hover target")
	}

	want := []string{"data", "", "freedom", ""}
	if len(changes) != len(want) {
		t.Fatalf("expected changes %v, got %v", want, changes)
	}
	for i := range want {
		if changes[i] != want[i] {
			t.Errorf("change %d = %q, want %q", i, changes[i], want[i])
		}
	}
}
