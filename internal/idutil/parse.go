// Package idutil provides validation for identifiers received over the admin API.
package idutil

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidID is returned for identifiers that are not positive integers
var ErrInvalidID = errors.New("invalid identifier")

// ErrInvalidLimit is returned for malformed page sizes
var ErrInvalidLimit = errors.New("invalid limit")

// MaxLimit caps the page size of list requests
const MaxLimit = 1000

// ParseID parses a job or project identifier.
// It rejects signs, whitespace, leading zeros and control characters so that
// one id has exactly one textual form.
func ParseID(raw string) (int64, error) {
	if raw == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidID)
	}

	for _, char := range raw {
		if char < '0' || char > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidID, raw)
		}
	}

	if len(raw) > 1 && strings.HasPrefix(raw, "0") {
		return 0, fmt.Errorf("%w: %q has leading zeros", ErrInvalidID, raw)
	}

	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidID, raw)
	}
	if id == 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidID)
	}
	return id, nil
}

// ParseOptionalID parses an identifier that may be absent
func ParseOptionalID(raw string) (*int64, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := ParseID(raw)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// ParseLimit parses a page size, falling back to def when raw is empty.
// Values above MaxLimit are clamped.
func ParseLimit(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 1 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidLimit, raw)
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}
	return limit, nil
}
