package ingest

import (
	"embed"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/TFMV/echoes/models"
)

//go:embed datasets/*.json
var datasets embed.FS

const genericDataset = "generic"

// OfflineConcepts lists the concepts that ship with a curated dataset
func OfflineConcepts() []string {
	entries, err := datasets.ReadDir("datasets")
	if err != nil {
		return nil
	}
	var names []string
	for _, e := range entries {
		name := strings.TrimSuffix(e.Name(), ".json")
		if name != genericDataset {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Offline returns the bundled dataset for concept, matched case-insensitively.
// Concepts without a curated dataset get the generic template with the concept
// name filled in.
func Offline(concept string) (*models.Concept, error) {
	data, err := datasets.ReadFile("datasets/" + strings.ToLower(concept) + ".json")
	if err != nil {
		template, err := datasets.ReadFile("datasets/" + genericDataset + ".json")
		if err != nil {
			return nil, fmt.Errorf("generic dataset missing: %w", err)
		}
		// Quote then strip the quotes so the name is JSON-escaped in place
		quoted, _ := json.Marshal(concept)
		escaped := string(quoted[1 : len(quoted)-1])
		data = []byte(strings.ReplaceAll(string(template), "{{concept}}", escaped))
	}

	c, err := NewJSONProcessor(DefaultPalette()).ProcessData(data)
	if err != nil {
		return nil, fmt.Errorf("offline dataset for %q: %w", concept, err)
	}
	c.Source = "offline"
	return c, nil
}
