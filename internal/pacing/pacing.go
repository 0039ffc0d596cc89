// Package pacing holds the pure delay-policy helpers shared by the broadcast
// scheduler and the join worker. Every user-entered or persisted delay setting
// passes through here, so corrupt values self-heal and the product ceilings
// are enforced in exactly one place.
package pacing

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Range is an inclusive integer delay range. The unit (seconds or minutes)
// is whatever the owning field says it is.
type Range struct {
	Min int
	Max int
}

// Normalize coerces invalid input to the given defaults, clamps both bounds
// to >= 1, and swaps inverted bounds. Persisted delay configs always pass
// through here on load so garbage in a settings file cannot break pacing.
func Normalize(min, max, defMin, defMax int) Range {
	if min <= 0 {
		min = defMin
	}
	if max <= 0 {
		max = defMax
	}
	if min < 1 {
		min = 1
	}
	if max < 1 {
		max = 1
	}
	if min > max {
		min, max = max, min
	}
	return Range{Min: min, Max: max}
}

// ParseDual accepts either a bare integer ("15") or a "min-max" pair ("10-30")
// and returns a normalized range with Min <= Max. Inverted pairs are swapped.
func ParseDual(raw string) (Range, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return Range{}, fmt.Errorf("empty value")
	}

	if i := strings.Index(s, "-"); i > 0 {
		lo, err1 := strconv.Atoi(strings.TrimSpace(s[:i]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(s[i+1:]))
		if err1 != nil || err2 != nil || lo < 0 || hi < 0 {
			return Range{}, fmt.Errorf("invalid range %q, expected min-max", raw)
		}
		if lo > hi {
			lo, hi = hi, lo
		}
		return Range{Min: lo, Max: hi}, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return Range{}, fmt.Errorf("invalid value %q, expected a number or min-max", raw)
	}
	return Range{Min: n, Max: n}, nil
}

// ParseDualBounded parses like ParseDual and then enforces the field's
// product ceiling. Out-of-bound values are rejected with an error the UI can
// show verbatim, never silently clamped.
func ParseDualBounded(raw string, lo, hi int) (Range, error) {
	r, err := ParseDual(raw)
	if err != nil {
		return Range{}, err
	}
	if r.Min < lo || r.Max > hi {
		return Range{}, fmt.Errorf("value must be between %d and %d", lo, hi)
	}
	return r, nil
}

// Pick draws a uniform random duration from the range in the given unit.
// Fractional positions inside the range are allowed so repeated draws do not
// land on whole-unit boundaries.
func Pick(rng *rand.Rand, r Range, unit time.Duration) time.Duration {
	if r.Max <= r.Min {
		return time.Duration(r.Min) * unit
	}
	f := float64(r.Min) + rng.Float64()*float64(r.Max-r.Min)
	return time.Duration(f * float64(unit))
}
