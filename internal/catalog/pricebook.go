package catalog

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// mapPriceBook implements PriceBook with a map keyed by product id.
type mapPriceBook struct {
	products map[string]Product
}

func newMapPriceBook(capacity int) *mapPriceBook {
	return &mapPriceBook{products: make(map[string]Product, capacity)}
}

func (b *mapPriceBook) Get(productID string) (Product, bool) {
	p, ok := b.products[productID]
	return p, ok
}

func (b *mapPriceBook) All() []Product {
	out := make([]Product, 0, len(b.products))
	for _, p := range b.products {
		out = append(out, p)
	}
	return out
}

func (b *mapPriceBook) Size() int {
	return len(b.products)
}

// Add stores p, replacing any entry with the same id.
func (b *mapPriceBook) Add(p Product) {
	b.products[p.ID] = p
}

// parseLine reads a "productId|name|unitPrice" record.
func parseLine(line string) (Product, error) {
	parts := strings.Split(line, "|")
	if len(parts) != 3 {
		return Product{}, fmt.Errorf("expected 3 fields, got %d", len(parts))
	}

	id := strings.TrimSpace(parts[0])
	name := strings.TrimSpace(parts[1])
	if id == "" || name == "" {
		return Product{}, fmt.Errorf("empty product id or name")
	}

	price, err := decimal.NewFromString(strings.TrimSpace(parts[2]))
	if err != nil {
		return Product{}, fmt.Errorf("invalid unit price: %w", err)
	}
	if price.IsNegative() {
		return Product{}, fmt.Errorf("negative unit price %s", price)
	}
	if !price.Equal(price.Round(2)) {
		return Product{}, fmt.Errorf("unit price %s has more than two decimal places", price)
	}

	return Product{ID: id, Name: name, UnitPrice: price}, nil
}

// readPriceBook decompresses r and parses one record per line. Blank lines are ignored,
// malformed lines are skipped and counted.
func readPriceBook(ctx context.Context, r io.Reader, source string, logger zerolog.Logger) (*mapPriceBook, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader for %s: %w", source, err)
	}
	defer gzipReader.Close()

	book := newMapPriceBook(1024)
	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineNo := 0
	skipped := 0
	for scanner.Scan() {
		lineNo++
		if lineNo%10_000 == 0 {
			select {
			case <-ctx.Done():
				logger.Warn().Str("source", source).Msg("price book loading cancelled")
				return nil, ctx.Err()
			default:
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		p, err := parseLine(line)
		if err != nil {
			skipped++
			logger.Warn().Err(err).Str("source", source).Int("line", lineNo).Msg("skipping malformed price book line")
			continue
		}
		book.Add(p)
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading price book %s: %w", source, err)
	}

	logger.Info().
		Str("source", source).
		Int("products_loaded", book.Size()).
		Int("lines_skipped", skipped).
		Msg("price book file loaded")

	return book, nil
}
