package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// MaxKeyLength is the maximum allowed length for a document id.
const MaxKeyLength = 512

// KeySeparator joins the parts of a composite document id. Only the first
// part of an id may contain it.
const KeySeparator = ":"

// Store collections.
const (
	CollectionScenarios    = "scenarios"
	CollectionRiskResults  = "risk_results"
	CollectionExplanations = "explanations"
)

// Sentinel errors for cache operations.
var (
	ErrInvalidKey = errors.New("cache: key is invalid")
	ErrKeyTooLong = errors.New("cache: key exceeds max length")

	// ErrInvalidInput matches every *InputError.
	ErrInvalidInput = errors.New("cache: invalid input")

	// ErrComputeFailed wraps failures of the risk engine or ML model.
	ErrComputeFailed = errors.New("cache: risk computation failed")

	// ErrModelUnavailable is returned for a non-deterministic model mode
	// when no ML model is configured.
	ErrModelUnavailable = errors.New("cache: no ML model configured")

	// ErrNoEngine is returned when a miss needs computing and no risk
	// engine is configured.
	ErrNoEngine = errors.New("cache: no risk engine configured")
)

// InputError reports caller input that cannot be processed. No store call
// is made once an InputError is returned.
type InputError struct {
	// Missing lists required fields that were absent, in request order.
	Missing []string
	// Field and Reason describe a present but invalid field.
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	if len(e.Missing) > 0 {
		return "missing fields: " + strings.Join(e.Missing, ", ")
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Is lets errors.Is(err, ErrInvalidInput) match.
func (e *InputError) Is(target error) bool {
	return target == ErrInvalidInput
}

// DocumentStore is the subset of the document client the coordinator uses.
// *docstore.Client satisfies it.
//
// Contract:
//   - Get reports an absent document as (false, nil).
//   - Errors are passed through to the coordinator's caller unchanged.
type DocumentStore interface {
	Get(ctx context.Context, collection, id string, out any) (bool, error)
	Upsert(ctx context.Context, collection, id string, doc, out any) error
}

// RiskEngine computes risk metrics for a scenario.
type RiskEngine interface {
	Compute(ctx context.Context, s Scenario) (*RiskResult, error)
}

// MLModel refines a deterministic result for non-deterministic model modes.
type MLModel interface {
	Adjust(ctx context.Context, s Scenario, base *RiskResult) (*RiskResult, error)
}

// Leaderboard supplies the ranking snippet shown next to a scenario.
type Leaderboard interface {
	Snippet(ctx context.Context, scenarioID, sectorID string) ([]LeaderboardEntry, error)
}

// ValidateKeyPart rejects a value that cannot be one part of a composite
// id such as ExplanationID. field names the offending input.
func ValidateKeyPart(field, value string) error {
	if strings.Contains(value, KeySeparator) {
		return &InputError{Field: field, Reason: fmt.Sprintf("must not contain %q", KeySeparator)}
	}
	return nil
}

// ValidateKey checks if a key is usable as a document id.
func ValidateKey(key string) error {
	if strings.TrimSpace(key) == "" {
		return ErrInvalidKey
	}
	if len(key) > MaxKeyLength {
		return ErrKeyTooLong
	}
	if strings.ContainsAny(key, "\n\r") {
		return ErrInvalidKey
	}
	return nil
}

func firstInputErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
