package ingest

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/TFMV/echoes/client"
	"github.com/TFMV/echoes/models"
)

// Backend graphs are a star around the searched concept
const (
	MainNodeID   = "main"
	mainNodeSize = 30.0
	maxEraItems  = 6
)

var (
	yearPattern = regexp.MustCompile(`(\d{4})s?`)
	itemColors  = []string{"#3b82f6", "#8b5cf6", "#06b6d4", "#3b82f6", "#8b5cf6"}
)

// EraToYear converts an era label to a time key. Decade labels ("1900s") map
// to base+40, bare years map to themselves, anything else to 2000.
func EraToYear(era string) int {
	m := yearPattern.FindStringSubmatch(era)
	if m == nil {
		return 2000
	}
	year, _ := strconv.Atoi(m[1])
	if strings.Contains(era, "s") {
		year += 40
	}
	return year
}

// TransformTimeline converts a backend timeline (and optional symbol pairs)
// into a concept
func TransformTimeline(concept string, tl *client.TimelineResponse, symbols *client.SymbolPairsResponse) (*models.Concept, error) {
	if tl == nil || len(tl.Eras) == 0 {
		return nil, ErrNoSnapshots
	}

	timeline := models.NewTimeline()
	years := make([]int, 0, len(tl.Eras))
	for _, era := range tl.Eras {
		year := EraToYear(era.Era)
		years = append(years, year)
		timeline.Put(eraSnapshot(concept, year, era.Items))
	}
	sort.Ints(years)

	out := &models.Concept{
		Name:      concept,
		TimeRange: fmt.Sprintf("%d - %d CE", years[0], years[len(years)-1]),
		Narrative: narrative(concept, tl),
		Timeline:  timeline,
		Patterns:  make(map[int]models.PatternPair),
		Source:    "backend",
	}

	if symbols != nil && symbols.Pairs != nil {
		for eraKey, pair := range symbols.Pairs {
			out.Patterns[EraToYear(eraKey)] = models.PatternPair{
				Ancient: artifact(pair.Ancient),
				Modern:  artifact(pair.Modern),
			}
		}
	} else {
		// Fallback pattern data based on eras
		for _, era := range tl.Eras {
			out.Patterns[EraToYear(era.Era)] = models.PatternPair{
				Ancient: models.Artifact{Title: "Historical " + concept, Description: "Representation from earlier period", Era: era.Era},
				Modern:  models.Artifact{Title: "Modern " + concept, Description: "Contemporary interpretation", Era: era.Era},
			}
		}
	}

	return out, nil
}

func eraSnapshot(concept string, year int, items []client.TimelineItem) *models.GraphSnapshot {
	snapshot := models.NewSnapshot(year)

	main := models.NewNode(MainNodeID, concept)
	main.SetAppearance(mainNodeSize, DefaultPalette().MainColor)
	snapshot.AddNode(main)

	if len(items) > maxEraItems {
		items = items[:maxEraItems]
	}
	for idx, item := range items {
		id := fmt.Sprintf("node-%d", idx)
		label := topTerm(item.Text)
		if label == "" {
			label = fmt.Sprintf("Term %d", idx+1)
		}

		node := models.NewNode(id, capitalize(label))
		node.SetAppearance(20+item.Similarity*10, itemColors[idx%len(itemColors)])
		snapshot.AddNode(node)

		strength := item.Similarity
		if strength == 0 {
			strength = 0.5
		}
		snapshot.AddEdge(models.NewEdge(MainNodeID, id, strength))
	}
	return snapshot
}

func narrative(concept string, tl *client.TimelineResponse) models.Narrative {
	assoc := models.Association{From: "traditional meaning", To: "contemporary interpretation"}
	if tl.PrimaryAssociation != nil {
		assoc = models.Association{From: tl.PrimaryAssociation.From, To: tl.PrimaryAssociation.To}
	} else if len(tl.Eras) > 1 {
		assoc = ExtractAssociations(tl.Eras[0].Items, tl.Eras[len(tl.Eras)-1].Items)
	}

	if tl.SemanticShift == nil || *tl.SemanticShift == 0 {
		return models.Narrative{
			Summary:            fmt.Sprintf("The concept of %q has undergone significant transformation throughout history, adapting to cultural, technological, and social changes.", concept),
			SemanticShift:      42,
			PrimaryAssociation: assoc,
		}
	}

	shift := math.Round(*tl.SemanticShift)
	from, to := "traditional contexts", "contemporary usage"
	if tl.PrimaryAssociation != nil {
		from, to = orDefault(tl.PrimaryAssociation.From, from), orDefault(tl.PrimaryAssociation.To, to)
	}
	return models.Narrative{
		Summary:            fmt.Sprintf("The concept of %q evolved by a %.0f%% semantic shift, moving its primary association from %q to %q.", concept, shift, from, to),
		SemanticShift:      shift,
		PrimaryAssociation: assoc,
	}
}

func artifact(side client.SymbolSide) models.Artifact {
	return models.Artifact{
		Title:       side.Title,
		Description: side.Description,
		Era:         side.Era,
		ImagePath:   side.Path,
	}
}

// CalculateSemanticShift compares the average similarity of two eras, in percent
func CalculateSemanticShift(older, newer []client.TimelineItem) float64 {
	return math.Abs(averageSimilarity(newer)-averageSimilarity(older)) * 100
}

func averageSimilarity(items []client.TimelineItem) float64 {
	if len(items) == 0 {
		return 0
	}
	sum := 0.0
	for _, item := range items {
		sum += item.Similarity
	}
	return sum / float64(len(items))
}

// ExtractAssociations names the most relevant term of each era
func ExtractAssociations(older, newer []client.TimelineItem) models.Association {
	extract := func(items []client.TimelineItem) string {
		if len(items) == 0 {
			return "unknown"
		}
		if term := topTerm(items[0].Text); term != "" {
			return term
		}
		return "concept"
	}
	return models.Association{From: extract(older), To: extract(newer)}
}

// topTerm returns the first word longer than three characters
func topTerm(text string) string {
	for _, w := range strings.Fields(text) {
		if utf8.RuneCountInString(w) > 3 {
			return w
		}
	}
	return ""
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
