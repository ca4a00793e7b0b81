package promo

import (
	"context"
	"fmt"
	"sync"

	"storecore/internal/model"

	"github.com/rs/zerolog"
)

// validator implements Validator over in-memory promo code sets.
// The sets are read-only after initialisation, so no locking is needed.
type validator struct {
	codeSets      []CodeSet
	minMatchCount int
	logger        zerolog.Logger
}

// ValidatorConfig holds configuration for the promo code validator.
type ValidatorConfig struct {
	// FilePaths is the list of promo code file paths to load.
	FilePaths []string

	// MinMatchCount is the minimum number of files a code must appear in.
	// Default: 2
	MinMatchCount int
}

// DefaultValidatorConfig returns the default validator configuration.
func DefaultValidatorConfig() *ValidatorConfig {
	return &ValidatorConfig{
		FilePaths: []string{
			"data/promos/promobase1.gz",
			"data/promos/promobase2.gz",
			"data/promos/promobase3.gz",
		},
		MinMatchCount: 2,
	}
}

// NewValidator creates a new promo code validator. All code files are loaded
// concurrently at initialisation time.
func NewValidator(ctx context.Context, config *ValidatorConfig, loader Loader, logger zerolog.Logger) (Validator, error) {
	if config == nil {
		config = DefaultValidatorConfig()
	}

	logger = logger.With().Str("component", "promo-validator").Logger()

	logger.Info().
		Int("file_count", len(config.FilePaths)).
		Int("min_match_count", config.MinMatchCount).
		Msg("initialising promo validator")

	v := &validator{
		codeSets:      make([]CodeSet, 0, len(config.FilePaths)),
		minMatchCount: config.MinMatchCount,
		logger:        logger,
	}

	type loadResult struct {
		index int
		set   CodeSet
		err   error
	}

	resultChan := make(chan loadResult, len(config.FilePaths))
	var wg sync.WaitGroup

	for i, filePath := range config.FilePaths {
		wg.Add(1)
		go func(index int, path string) {
			defer wg.Done()

			set, err := loader.Load(ctx, path)
			resultChan <- loadResult{index: index, set: set, err: err}
		}(i, filePath)
	}

	wg.Wait()
	close(resultChan)

	results := make([]loadResult, len(config.FilePaths))
	for result := range resultChan {
		results[result.index] = result
	}

	for i, result := range results {
		if result.err != nil {
			logger.Error().
				Err(result.err).
				Str("file", config.FilePaths[i]).
				Msg("failed to load promo code file")
			return nil, fmt.Errorf("failed to load promo code file %s: %w", config.FilePaths[i], result.err)
		}
		v.codeSets = append(v.codeSets, result.set)
		logger.Info().
			Str("file", config.FilePaths[i]).
			Int("size", result.set.Size()).
			Msg("promo code file loaded")
	}

	return v, nil
}

// Validate checks if a promo code is valid: 8-10 characters and present in
// at least minMatchCount files.
func (v *validator) Validate(ctx context.Context, code string) error {
	if len(code) < 8 || len(code) > 10 {
		v.logger.Debug().
			Str("promo_code", code).
			Int("length", len(code)).
			Msg("promo code length invalid")
		return model.ErrInvalidPromoLength
	}

	matchCount := v.countMatches(ctx, code)

	if matchCount < v.minMatchCount {
		v.logger.Debug().
			Str("promo_code", code).
			Int("match_count", matchCount).
			Msg("promo code not found in sufficient files")
		return model.ErrInvalidPromoCode
	}

	return nil
}

// countMatches counts how many code files contain the given promo code,
// checking the sets concurrently and stopping as soon as the outcome is
// decided either way.
func (v *validator) countMatches(ctx context.Context, code string) int {
	resultChan := make(chan bool, len(v.codeSets))
	doneChan := make(chan struct{})
	defer close(doneChan)

	for _, set := range v.codeSets {
		go func(s CodeSet) {
			select {
			case <-doneChan:
				return
			case <-ctx.Done():
				return
			default:
			}

			select {
			case resultChan <- s.Contains(code):
			case <-doneChan:
			case <-ctx.Done():
			}
		}(set)
	}

	matches := 0
	checked := 0

	for checked < len(v.codeSets) {
		select {
		case found := <-resultChan:
			checked++
			if found {
				matches++
				if matches >= v.minMatchCount {
					return matches
				}
			}
			if matches+(len(v.codeSets)-checked) < v.minMatchCount {
				return matches
			}
		case <-ctx.Done():
			return matches
		}
	}

	return matches
}

// Close releases resources held by the validator.
func (v *validator) Close() error {
	v.codeSets = nil

	v.logger.Info().Msg("promo validator closed")

	return nil
}
