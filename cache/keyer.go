package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"slices"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// Model modes.
const (
	ModeDeterministic = "deterministic"
)

// ErrInvalidTariff is returned by ParseTariff for non-numeric or
// out-of-range input.
var ErrInvalidTariff = errors.New("cache: tariff percent must be a finite number in range")

// Tariff bounds. After trailing zeros are dropped, the coefficient must fit
// in maxTariffBits and the exponent must lie in [-maxTariffExponent,
// maxTariffExponent], which keeps the canonical form a few dozen digits long.
const (
	maxTariffBits     = 128
	maxTariffExponent = 20
)

// Scenario is a normalized set of scenario-defining inputs.
//
// Build one with NewScenario; a Scenario built that way always
// fingerprints without error.
type Scenario struct {
	TariffPercent  decimal.Decimal
	TargetPartners []string // sorted, de-duplicated
	SectorFilter   []string // sorted, de-duplicated; nil means no filter
	ModelMode      string
}

// NewScenario validates and normalizes scenario inputs.
//
// tariff may be any Go numeric type, json.Number, a numeric string or a
// decimal.Decimal. Partners and filter are treated as sets. An empty
// filter is the same as no filter. modelMode is kept verbatim.
func NewScenario(tariff any, partners, filter []string, modelMode string) (Scenario, error) {
	d, err := ParseTariff(tariff)
	if err != nil {
		return Scenario{}, &InputError{Field: "tariff_percent", Reason: err.Error()}
	}
	if partners == nil {
		return Scenario{}, &InputError{Missing: []string{"target_partners"}}
	}
	if slices.ContainsFunc(partners, isBlank) {
		return Scenario{}, &InputError{Field: "target_partners", Reason: "entries must be non-empty"}
	}
	if slices.ContainsFunc(filter, isBlank) {
		return Scenario{}, &InputError{Field: "sector_filter", Reason: "entries must be non-empty"}
	}
	if modelMode == "" {
		modelMode = ModeDeterministic
	}

	return Scenario{
		TariffPercent:  d,
		TargetPartners: normalizeSet(partners),
		SectorFilter:   normalizeSet(filter),
		ModelMode:      modelMode,
	}, nil
}

func isBlank(s string) bool {
	return strings.TrimSpace(s) == ""
}

// normalizeSet returns a sorted copy of values without duplicates. Empty
// input returns nil so that an empty set and no set compare equal.
func normalizeSet(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	out := slices.Clone(values)
	sort.Strings(out)
	return slices.Compact(out)
}

// ParseTariff converts a numeric value of any supported representation to
// a decimal. NaN, infinities, booleans and non-numeric strings are rejected.
func ParseTariff(v any) (decimal.Decimal, error) {
	d, err := parseTariff(v)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return boundTariff(d)
}

func parseTariff(v any) (decimal.Decimal, error) {
	switch n := v.(type) {
	case decimal.Decimal:
		return n, nil
	case *decimal.Decimal:
		if n == nil {
			return decimal.Decimal{}, ErrInvalidTariff
		}
		return *n, nil
	case int:
		return decimal.NewFromInt(int64(n)), nil
	case int8:
		return decimal.NewFromInt(int64(n)), nil
	case int16:
		return decimal.NewFromInt(int64(n)), nil
	case int32:
		return decimal.NewFromInt(int64(n)), nil
	case int64:
		return decimal.NewFromInt(n), nil
	case uint:
		return fromUint(uint64(n)), nil
	case uint8:
		return fromUint(uint64(n)), nil
	case uint16:
		return fromUint(uint64(n)), nil
	case uint32:
		return fromUint(uint64(n)), nil
	case uint64:
		return fromUint(n), nil
	case float32:
		return parseFloat(float64(n))
	case float64:
		return parseFloat(n)
	case json.Number:
		return parseString(string(n))
	case string:
		return parseString(n)
	default:
		return decimal.Decimal{}, fmt.Errorf("%w: got %T", ErrInvalidTariff, v)
	}
}

// boundTariff drops trailing zeros from d and rejects values whose digits
// or exponent are out of range. It never expands d to its full digit string.
func boundTariff(d decimal.Decimal) (decimal.Decimal, error) {
	coef := new(big.Int).Set(d.Coefficient())
	if coef.BitLen() > maxTariffBits {
		return decimal.Decimal{}, fmt.Errorf("%w: too many digits", ErrInvalidTariff)
	}
	if coef.Sign() == 0 {
		return decimal.Zero, nil
	}

	exp := int64(d.Exponent())
	ten := big.NewInt(10)
	q, r := new(big.Int), new(big.Int)
	for {
		q.QuoRem(coef, ten, r)
		if r.Sign() != 0 {
			break
		}
		coef.Set(q)
		exp++
	}
	if exp < -maxTariffExponent || exp > maxTariffExponent {
		return decimal.Decimal{}, fmt.Errorf("%w: exponent %d out of range", ErrInvalidTariff, exp)
	}
	return decimal.NewFromBigInt(coef, int32(exp)), nil
}

func fromUint(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}

func parseFloat(f float64) (decimal.Decimal, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Decimal{}, ErrInvalidTariff
	}
	return decimal.NewFromFloat(f), nil
}

func parseString(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %q", ErrInvalidTariff, s)
	}
	return d, nil
}

// canonical returns the scenario as a map of strings, string lists and nil.
func (s Scenario) canonical() map[string]any {
	var filter any
	if len(s.SectorFilter) > 0 {
		filter = toAny(s.SectorFilter)
	}
	return map[string]any{
		"model_mode":      s.ModelMode,
		"sector_filter":   filter,
		"target_partners": toAny(s.TargetPartners),
		"tariff_percent":  s.TariffPercent.String(),
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Keyer derives the store id of a scenario.
//
// Contract:
// - Determinism: equal normalized scenarios must produce equal keys.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	Key(s Scenario) string
}

// DefaultKeyer generates SHA-256 fingerprints.
type DefaultKeyer struct{}

// NewDefaultKeyer creates a new default keyer.
func NewDefaultKeyer() *DefaultKeyer {
	return &DefaultKeyer{}
}

// Key returns Fingerprint(s).
func (k *DefaultKeyer) Key(s Scenario) string {
	return Fingerprint(s)
}

// Fingerprint returns the 64-character hex SHA-256 of the scenario's
// canonical JSON form.
func Fingerprint(s Scenario) string {
	// canonical() holds only strings, []any of strings and nil, which always marshal.
	canonical, _ := canonicalize(s.canonical())
	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:])
}

// canonicalize produces a deterministic JSON representation of v.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	if v == nil {
		return []byte("null"), nil
	}

	switch val := v.(type) {
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	default:
		return json.Marshal(v)
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}

var _ Keyer = (*DefaultKeyer)(nil)
