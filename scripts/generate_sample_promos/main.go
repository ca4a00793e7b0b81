package main

import (
	"compress/gzip"
	"fmt"
	"log"
	"os"
	"path/filepath"
)

// generate_sample_promos creates the three gzipped promo code files the
// validator loads at startup. A code is valid when it appears in at
// least two of the three files, so the sets below deliberately overlap.
func main() {
	dataDir := "data/promos"

	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create directory: %v", err)
	}

	promos := map[string][]string{
		"promobase1.gz": {
			"WELCOME10", // In files 1 and 2
			"SAVEBIG20", // In files 1 and 2
			"ALLSTORES", // In all 3 files
			"FIRSTONLY", // Only in file 1
			"SUMMER2026", // In files 1 and 3
		},
		"promobase2.gz": {
			"WELCOME10", // In files 1 and 2
			"SAVEBIG20", // In files 1 and 2
			"ALLSTORES", // In all 3 files
			"SECONDONLY", // Only in file 2
			"WINTER2026", // In files 2 and 3
		},
		"promobase3.gz": {
			"WINTER2026", // In files 2 and 3
			"SUMMER2026", // In files 1 and 3
			"ALLSTORES",  // In all 3 files
			"THIRDONLY",  // Only in file 3
			"SPRING2026", // In file 3 only
		},
	}

	for filename, codes := range promos {
		filePath := filepath.Join(dataDir, filename)

		if err := createPromoFile(filePath, codes); err != nil {
			log.Fatalf("Failed to create %s: %v", filename, err)
		}

		fmt.Printf("Created %s with %d codes\n", filePath, len(codes))
	}

	fmt.Println("\nSample promo files created successfully!")
	fmt.Println("\nValid codes (appear in at least 2 files):")
	fmt.Println("  - WELCOME10  (files 1, 2)")
	fmt.Println("  - SAVEBIG20  (files 1, 2)")
	fmt.Println("  - ALLSTORES  (files 1, 2, 3)")
	fmt.Println("  - SUMMER2026 (files 1, 3)")
	fmt.Println("  - WINTER2026 (files 2, 3)")
	fmt.Println("\nInvalid codes (appear in only 1 file):")
	fmt.Println("  - FIRSTONLY  (file 1 only)")
	fmt.Println("  - SECONDONLY (file 2 only)")
	fmt.Println("  - THIRDONLY  (file 3 only)")
	fmt.Println("  - SPRING2026 (file 3 only)")
}

func createPromoFile(filePath string, codes []string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, code := range codes {
		if _, err := fmt.Fprintf(gzipWriter, "%s\n", code); err != nil {
			return fmt.Errorf("failed to write promo code: %w", err)
		}
	}

	return nil
}
