// Package catalog answers name and unit price lookups from gzipped price-book files.
package catalog

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"furniture-store/internal/model"
)

// Product is a price-book entry.
type Product struct {
	ID        string
	Name      string
	UnitPrice decimal.Decimal
}

// Catalog resolves products by id.
type Catalog interface {
	Lookup(ctx context.Context, productID string) (Product, error)
	Size() int
}

// PriceBook is the content of one price-book file.
type PriceBook interface {
	Get(productID string) (Product, bool)
	All() []Product
	Size() int
}

// Loader reads one gzipped price-book file.
type Loader interface {
	Load(ctx context.Context, path string) (PriceBook, error)
}

type catalog struct {
	products map[string]Product
	logger   zerolog.Logger
}

// New loads every file concurrently and merges them. When a product appears in more than
// one file the entry from the file listed last wins.
func New(ctx context.Context, files []string, loader Loader, logger zerolog.Logger) (Catalog, error) {
	logger = logger.With().Str("component", "catalog").Logger()

	logger.Info().Int("file_count", len(files)).Msg("loading price book")

	type loadResult struct {
		index int
		book  PriceBook
		err   error
	}

	resultChan := make(chan loadResult, len(files))
	var wg sync.WaitGroup

	for i, path := range files {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()
			book, err := loader.Load(ctx, path)
			resultChan <- loadResult{index: index, book: book, err: err}
		}(i, path)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(files))
	for r := range resultChan {
		results[r.index] = r
	}

	c := &catalog{
		products: make(map[string]Product),
		logger:   logger,
	}

	for i, r := range results {
		if r.err != nil {
			logger.Error().Err(r.err).Str("file", files[i]).Msg("failed to load price book file")
			return nil, fmt.Errorf("failed to load price book file %s: %w", files[i], r.err)
		}
		for _, p := range r.book.All() {
			c.products[p.ID] = p
		}
	}

	logger.Info().Int("products", len(c.products)).Msg("price book ready")
	return c, nil
}

// Lookup returns the product or model.ErrProductNotFound.
func (c *catalog) Lookup(_ context.Context, productID string) (Product, error) {
	p, ok := c.products[productID]
	if !ok {
		c.logger.Debug().Str("product_id", productID).Msg("product not in price book")
		return Product{}, model.ErrProductNotFound
	}
	return p, nil
}

func (c *catalog) Size() int {
	return len(c.products)
}
