package domain

import (
	"errors"
	"regexp"
)

// ErrValidation marks malformed caller input. No state is touched when it
// is returned.
var ErrValidation = errors.New("validation error")

var objectIDPattern = regexp.MustCompile(`^[0-9a-fA-F]{24}$`)

// IsValidID reports whether id has the shape of a stored document id
// (24 hex characters).
func IsValidID(id string) bool {
	return objectIDPattern.MatchString(id)
}
