package promo

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// fileLoader implements Loader for reading gzipped promo code files from the
// local file system.
type fileLoader struct {
	logger zerolog.Logger
}

// NewFileLoader creates a new file-based promo code loader.
func NewFileLoader(logger zerolog.Logger) Loader {
	return &fileLoader{
		logger: logger.With().Str("component", "promo-loader").Logger(),
	}
}

// Load reads a gzipped promo code file and returns a CodeSet.
// The file is expected to contain one code per line.
func (l *fileLoader) Load(ctx context.Context, filePath string) (CodeSet, error) {
	l.logger.Info().Str("file", filePath).Msg("loading promo code file")

	file, err := os.Open(filePath)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to open promo code file")
		return nil, fmt.Errorf("failed to open promo code file %s: %w", filePath, err)
	}
	defer file.Close()

	set, err := readCodes(ctx, file)
	if err != nil {
		l.logger.Error().Err(err).Str("file", filePath).Msg("failed to read promo code file")
		return nil, fmt.Errorf("failed to read promo code file %s: %w", filePath, err)
	}

	l.logger.Info().
		Str("file", filePath).
		Int("codes_loaded", set.Size()).
		Msg("promo code file loaded")

	return set, nil
}

// readCodes decompresses and scans one-code-per-line input into a set,
// checking for cancellation periodically so huge files cannot wedge startup.
func readCodes(ctx context.Context, r io.Reader) (*mapCodeSet, error) {
	gzipReader, err := gzip.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzipReader.Close()

	set := NewMapCodeSet(1_000_000).(*mapCodeSet)

	scanner := bufio.NewScanner(gzipReader)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)

	lineCount := 0
	for scanner.Scan() {
		if lineCount%1_000_000 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			set.Add(line)
			lineCount++
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error scanning promo codes: %w", err)
	}

	return set, nil
}
