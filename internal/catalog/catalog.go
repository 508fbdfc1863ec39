// Package catalog owns the list of sellable products.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"tableorder/internal/collection"
	"tableorder/internal/models"
	"tableorder/internal/storage"
	"tableorder/internal/util"

	"go.uber.org/zap"
)

var (
	ErrNotFound     = errors.New("product not found")
	ErrDuplicateID  = errors.New("product id already exists")
	ErrMissingID    = errors.New("product id is required")
	ErrInvalidPrice = errors.New("product price must not be negative")
)

// Store is the product catalog of one node.
type Store struct {
	products *collection.Collection[models.Product]
	logger   *zap.Logger
}

// NewStore loads the catalog and merges seed into it once. The merge only
// writes when it changed something.
func NewStore(ctx context.Context, adapter *storage.Adapter, seed []models.Product) (*Store, error) {
	products, err := collection.New[models.Product](ctx, adapter, models.KeyProducts)
	if err != nil {
		return nil, err
	}

	s := &Store{
		products: products,
		logger:   util.GetLogger(),
	}

	err = products.Mutate(ctx, func(items []models.Product) ([]models.Product, bool) {
		merged, changed := MergeSeed(items, seed)
		if changed {
			util.SeedMergeWritesTotal.Inc()
		}
		return merged, changed
	})
	if err != nil {
		products.Close()
		return nil, fmt.Errorf("failed to merge seed catalog: %w", err)
	}

	s.logger.Info("Catalog loaded", zap.Int("products", products.Len()))
	return s, nil
}

// List returns all products in catalog order.
func (s *Store) List() []models.Product {
	return s.products.Items()
}

// Get returns the product with id.
func (s *Store) Get(id string) (models.Product, bool) {
	return s.products.Find(func(p models.Product) bool { return p.ID == id })
}

// Add appends p. Field completeness is the caller's concern.
func (s *Store) Add(ctx context.Context, p models.Product) error {
	ctx, span := util.StartSpan(ctx, "Catalog.Add")
	defer span.End()

	if p.ID == "" {
		return ErrMissingID
	}
	if p.Price < 0 {
		return ErrInvalidPrice
	}

	var dup bool
	err := s.products.Mutate(ctx, func(items []models.Product) ([]models.Product, bool) {
		for _, existing := range items {
			if existing.ID == p.ID {
				dup = true
				return items, false
			}
		}
		return append(items, p.Clone()), true
	})
	if err != nil {
		return err
	}
	if dup {
		return fmt.Errorf("%w: %s", ErrDuplicateID, p.ID)
	}

	s.logger.Info("Product added", zap.String("product_id", p.ID))
	return nil
}

// Update merges patch into the product with id.
func (s *Store) Update(ctx context.Context, id string, patch models.ProductPatch) error {
	ctx, span := util.StartSpan(ctx, "Catalog.Update")
	defer span.End()

	if patch.Price != nil && *patch.Price < 0 {
		return ErrInvalidPrice
	}

	found := false
	err := s.products.Mutate(ctx, func(items []models.Product) ([]models.Product, bool) {
		for i := range items {
			if items[i].ID == id {
				found = true
				return items, patch.Apply(&items[i])
			}
		}
		return items, false
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// ToggleAvailability flips the available flag of the product with id.
func (s *Store) ToggleAvailability(ctx context.Context, id string) error {
	ctx, span := util.StartSpan(ctx, "Catalog.ToggleAvailability")
	defer span.End()

	found := false
	err := s.products.Mutate(ctx, func(items []models.Product) ([]models.Product, bool) {
		for i := range items {
			if items[i].ID == id {
				found = true
				items[i].Available = !items[i].Available
				return items, true
			}
		}
		return items, false
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// Categories returns the distinct product categories in first-seen order.
// Products without a category are listed under "Other".
func (s *Store) Categories() []string {
	seen := make(map[string]struct{})
	var out []string
	for _, p := range s.products.Items() {
		c := p.Category
		if c == "" {
			c = "Other"
		}
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Subscribe registers fn to run after every catalog change.
func (s *Store) Subscribe(fn func()) func() {
	return s.products.Subscribe(fn)
}

func (s *Store) Close() {
	s.products.Close()
}
