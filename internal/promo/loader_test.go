package promo

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// createTestPromoFile creates a gzipped test promo code file.
func createTestPromoFile(t *testing.T, filename string, codes []string) string {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, filename)

	file, err := os.Create(filePath)
	require.NoError(t, err)
	defer file.Close()

	gzipWriter := gzip.NewWriter(file)
	defer gzipWriter.Close()

	for _, code := range codes {
		_, err := gzipWriter.Write([]byte(code + "\n"))
		require.NoError(t, err)
	}

	return filePath
}

func TestFileLoader_Load_Success(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	testCodes := []string{
		"PROMO0001",
		"PROMO0002",
		"PROMO0003",
		"SAVEBIG10",
		"WELCOME99",
	}

	filePath := createTestPromoFile(t, "test_promos.gz", testCodes)

	ctx := context.Background()
	set, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	require.NotNil(t, set)
	assert.Equal(t, 5, set.Size())

	for _, code := range testCodes {
		assert.True(t, set.Contains(code), "Expected code %s to be present", code)
	}
}

func TestFileLoader_Load_WithEmptyLines(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	testCodes := []string{
		"CODE00001",
		"",
		"CODE00002",
		"   ",
		"CODE00003",
	}

	filePath := createTestPromoFile(t, "promos_with_empty.gz", testCodes)

	ctx := context.Background()
	set, err := loader.Load(ctx, filePath)

	require.NoError(t, err)
	assert.Equal(t, 3, set.Size())
}

func TestFileLoader_Load_MissingFile(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	ctx := context.Background()
	set, err := loader.Load(ctx, "/nonexistent/promos.gz")

	require.Error(t, err)
	assert.Nil(t, set)
}

func TestFileLoader_Load_NotGzip(t *testing.T) {
	logger := zerolog.Nop()
	loader := NewFileLoader(logger)

	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "plain.txt")
	require.NoError(t, os.WriteFile(filePath, []byte("PROMO0001\n"), 0o644))

	ctx := context.Background()
	set, err := loader.Load(ctx, filePath)

	require.Error(t, err)
	assert.Nil(t, set)
}

func TestFallbackLoader_S3Disabled_UsesFileLoader(t *testing.T) {
	logger := zerolog.Nop()
	filePath := createTestPromoFile(t, "local.gz", []string{"LOCAL0001"})

	loader := NewFallbackLoader(nil, NewFileLoader(logger), "promos/", false, logger)

	set, err := loader.Load(context.Background(), filePath)

	require.NoError(t, err)
	assert.True(t, set.Contains("LOCAL0001"))
}

// failingLoader always errors, standing in for an unreachable S3 bucket.
type failingLoader struct{}

func (failingLoader) Load(context.Context, string) (CodeSet, error) {
	return nil, assert.AnError
}

func TestFallbackLoader_S3Failure_FallsBackToFile(t *testing.T) {
	logger := zerolog.Nop()
	filePath := createTestPromoFile(t, "local.gz", []string{"LOCAL0001"})

	loader := NewFallbackLoader(failingLoader{}, NewFileLoader(logger), "promos/", true, logger)

	set, err := loader.Load(context.Background(), filePath)

	require.NoError(t, err)
	assert.True(t, set.Contains("LOCAL0001"))
}
