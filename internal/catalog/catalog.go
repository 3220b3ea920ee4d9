// Package catalog holds the static, read-only product list the storefront
// sells. A Catalog is built once at start-up and never mutated afterwards.
package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/xenking/paperpen-storefront/internal/domain/product"
)

var _ product.Repository = (*Catalog)(nil)

// ValidationError describes a product definition rejected while building a
// catalog.
type ValidationError struct {
	Index     int
	ProductID string
	Reason    string
}

func (e *ValidationError) Error() string {
	if e.ProductID == "" {
		return fmt.Sprintf("product #%d: %s", e.Index, e.Reason)
	}
	return fmt.Sprintf("product #%d (%s): %s", e.Index, e.ProductID, e.Reason)
}

// Catalog is an immutable ordered product list. It implements
// product.Repository.
type Catalog struct {
	products []product.Product
	byID     map[string]int
}

// New validates the given products and returns a catalog preserving their
// order. IDs must be unique and non-empty, names non-empty and prices
// non-negative.
func New(products ...product.Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]product.Product, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for i, p := range products {
		switch {
		case strings.TrimSpace(p.ID) == "":
			return nil, &ValidationError{Index: i, Reason: "id is required"}
		case strings.TrimSpace(p.Name) == "":
			return nil, &ValidationError{Index: i, ProductID: p.ID, Reason: "name is required"}
		case p.Price.IsNegative():
			return nil, &ValidationError{Index: i, ProductID: p.ID, Reason: "price must not be negative"}
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, &ValidationError{Index: i, ProductID: p.ID, Reason: "duplicate id"}
		}
		c.byID[p.ID] = i
		c.products[i] = p
	}
	return c, nil
}

// WithImageBaseURL returns a copy of the catalog whose relative image paths
// are prefixed with base. Absolute URLs and empty paths are left alone.
func (c *Catalog) WithImageBaseURL(base string) *Catalog {
	if base == "" {
		return c
	}
	base = strings.TrimSuffix(base, "/")
	out := &Catalog{
		products: make([]product.Product, len(c.products)),
		byID:     c.byID,
	}
	for i, p := range c.products {
		if p.ImageURL != "" && !isAbsoluteURL(p.ImageURL) {
			p.ImageURL = base + "/" + strings.TrimPrefix(p.ImageURL, "/")
		}
		out.products[i] = p
	}
	return out
}

func isAbsoluteURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://") || strings.HasPrefix(s, "//")
}

// Len returns the number of products in the catalog.
func (c *Catalog) Len() int {
	return len(c.products)
}

// List returns every product in catalog order. The returned slice is a copy.
func (c *Catalog) List(_ context.Context) ([]product.Product, error) {
	out := make([]product.Product, len(c.products))
	copy(out, c.products)
	return out, nil
}

// GetByID returns the product with the given ID or product.ErrNotFound.
func (c *Catalog) GetByID(_ context.Context, id string) (*product.Product, error) {
	i, ok := c.byID[id]
	if !ok {
		return nil, product.ErrNotFound
	}
	p := c.products[i]
	return &p, nil
}

// GetByIDs returns the known products among ids, in the order requested.
// Unknown IDs are skipped; callers compare lengths to detect them.
func (c *Catalog) GetByIDs(_ context.Context, ids []string) ([]product.Product, error) {
	out := make([]product.Product, 0, len(ids))
	for _, id := range ids {
		if i, ok := c.byID[id]; ok {
			out = append(out, c.products[i])
		}
	}
	return out, nil
}
