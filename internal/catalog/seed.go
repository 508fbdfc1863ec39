package catalog

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"tableorder/internal/models"
)

//go:embed seed.json
var seedJSON []byte

// DefaultSeed returns the built-in menu merged into storage at startup.
func DefaultSeed() ([]models.Product, error) {
	var seed []models.Product
	if err := json.Unmarshal(seedJSON, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse seed catalog: %w", err)
	}
	return seed, nil
}

// MergeSeed folds seed products into stored products. A seed product that
// is missing is appended as is. One that is present gets its name, price,
// description, category and image reset to the seed values when any of them
// drifted; availability and custom fields are kept. The result is the same
// slice order as stored, followed by appended seed products, and changed
// reports whether anything differs from stored.
func MergeSeed(stored, seed []models.Product) ([]models.Product, bool) {
	merged := make([]models.Product, len(stored), len(stored)+len(seed))
	index := make(map[string]int, len(stored))
	for i, p := range stored {
		merged[i] = p.Clone()
		if _, dup := index[p.ID]; !dup {
			index[p.ID] = i
		}
	}

	changed := false
	for _, sp := range seed {
		i, ok := index[sp.ID]
		if !ok {
			merged = append(merged, sp.Clone())
			index[sp.ID] = len(merged) - 1
			changed = true
			continue
		}

		current := &merged[i]
		if current.SameDescriptiveFields(sp) {
			continue
		}
		current.Name = sp.Name
		current.Price = sp.Price
		current.Description = sp.Description
		current.Category = sp.Category
		current.Image = sp.Image
		changed = true
	}

	return merged, changed
}
