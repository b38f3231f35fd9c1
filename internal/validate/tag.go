// Package validate checks the arguments of the tag operations. Failures
// are sentinel-wrapped so callers can classify them with errors.Is.
package validate

import (
	"errors"
	"fmt"
	"regexp"
)

// MaxTagLength is the longest category name accepted as a tag.
const MaxTagLength = 32

// Validation errors. Tag failures wrap ErrInvalidTag and one of the
// specific causes.
var (
	ErrLimitNotPositive  = errors.New("limit must be positive")
	ErrInvalidTag        = errors.New("invalid tag")
	ErrEmpty             = errors.New("value is empty")
	ErrTooLong           = errors.New("value is too long")
	ErrInvalidCharacters = errors.New("value contains invalid characters")
)

var tagPattern = regexp.MustCompile(`^[a-z0-9\-_]+$`)

// Tag validates a category name:
// - empty is accepted only when allowEmpty is true
// - lowercase letters, digits, dash and underscore only
// - at most MaxTagLength characters
//
// Surrounding whitespace is not trimmed; " news" is rejected.
func Tag(value string, allowEmpty bool) (string, error) {
	var cause error
	switch {
	case value == "":
		if allowEmpty {
			return "", nil
		}
		cause = ErrEmpty
	case len(value) > MaxTagLength:
		cause = fmt.Errorf("%w: got %d chars, maximum is %d", ErrTooLong, len(value), MaxTagLength)
	case !tagPattern.MatchString(value):
		cause = ErrInvalidCharacters
	default:
		return value, nil
	}
	return "", fmt.Errorf("%w %q: %w", ErrInvalidTag, value, cause)
}

// Limit validates a requested page size. Zero and negative values are
// rejected; values above upper are clamped to upper.
func Limit(value, upper int) (int, error) {
	if value <= 0 {
		return 0, fmt.Errorf("%w: got %d", ErrLimitNotPositive, value)
	}
	if value > upper {
		return upper, nil
	}
	return value, nil
}
