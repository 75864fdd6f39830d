//go:build ignore

package main

import (
	"compress/gzip"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// generateSamplePriceBook writes the price book read by the API at start-up.
// Each line is "productId|name|unitPrice". Run with:
//
//	go run scripts/generate_sample_pricebook.go
func main() {
	dataDir := "data/pricebook"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	books := map[string][]string{
		"pricebook1.gz": {
			"sofa-oslo|Oslo Three-Seater Sofa|30000",
			"chair-bergen|Bergen Lounge Chair|12500",
			"table-lund|Lund Oak Dining Table|42000",
			"lamp-malmo|Malmo Floor Lamp|3500",
			"bed-aarhus|Aarhus King Bed Frame|51000",
			"rug-turku|Turku Wool Rug|8900.50",
		},
	}

	for filename, lines := range books {
		filePath := filepath.Join(dataDir, filename)

		if err := createPriceBookFile(filePath, lines); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d products\n", filePath, len(lines))
	}
}

func createPriceBookFile(filePath string, lines []string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, line := range lines {
		if _, err := fmt.Fprintf(gzipWriter, "%s\n", line); err != nil {
			return fmt.Errorf("failed to write product: %w", err)
		}
	}

	return nil
}
