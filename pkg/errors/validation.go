package errors

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// ValidateCoordinate rejects NaN and infinite coordinates before they reach
// the geometric predicates.
func ValidateCoordinate(ent Entity, x, y float64) error {
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return DegenerateGeometry(ent, "coordinate (%g, %g) is not finite", x, y)
	}
	return nil
}

// ValidateIntChoice checks that an integer option is one of the allowed values.
func ValidateIntChoice(name string, v int, allowed ...int) error {
	for _, a := range allowed {
		if v == a {
			return nil
		}
	}
	strs := make([]string, len(allowed))
	for i, a := range allowed {
		strs[i] = strconv.Itoa(a)
	}
	return InvalidOptionValue(name, v, "must be one of: %s", strings.Join(strs, ", "))
}

// ValidateRange checks lo <= v <= hi. Pass math.Inf(1) for an open upper bound.
func ValidateRange(name string, v, lo, hi float64) error {
	if math.IsNaN(v) || v < lo || v > hi {
		if math.IsInf(hi, 1) {
			return InvalidOptionValue(name, v, "must be >= %g", lo)
		}
		return InvalidOptionValue(name, v, "must be within [%g, %g]", lo, hi)
	}
	return nil
}

// ValidatePositive checks v > 0.
func ValidatePositive(name string, v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
		return InvalidOptionValue(name, v, "must be a positive finite number")
	}
	return nil
}

// ValidatePath validates a user-supplied file path for safety.
//
// Validation rules:
//   - Path cannot be empty
//   - Maximum length of 500 characters
//   - No null bytes or control characters
//   - No path traversal sequences (..)
func ValidatePath(path string) error {
	if path == "" {
		return New(ErrCodeInvalidPath, "path cannot be empty")
	}

	const maxPathLength = 500
	if len(path) > maxPathLength {
		return New(ErrCodeInvalidPath, "path too long (max %d characters)", maxPathLength)
	}

	for _, r := range path {
		if r == '\x00' || unicode.IsControl(r) {
			return New(ErrCodeInvalidPath, "path contains invalid characters")
		}
	}

	if strings.Contains(path, "..") {
		return New(ErrCodeInvalidPath, "path cannot contain path traversal sequences (..)")
	}

	return nil
}

// ValidateID validates an opaque document identifier used by stores and the
// HTTP API: 1-64 characters from [A-Za-z0-9_-].
func ValidateID(id string) error {
	if id == "" || len(id) > 64 {
		return New(ErrCodeInvalidInput, "id must be 1-64 characters")
	}
	for _, r := range id {
		ok := r == '-' || r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return New(ErrCodeInvalidInput, "id contains invalid character %q", r)
		}
	}
	return nil
}
