package catalog

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for local gzipped price-book files.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "pricebook-loader").Logger(),
	}
}

func (l *fileLoader) Load(ctx context.Context, path string) (PriceBook, error) {
	l.logger.Info().Str("file", path).Msg("loading price book file")

	file, err := os.Open(path)
	if err != nil {
		l.logger.Error().Err(err).Str("file", path).Msg("failed to open price book file")
		return nil, fmt.Errorf("failed to open price book file %s: %w", path, err)
	}
	defer file.Close()

	return readPriceBook(ctx, file, path, l.logger)
}
