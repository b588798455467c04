package storage

import (
	"errors"
	"strings"
)

// ErrEmptyIdentifier is returned when saving or deleting a blank identifier.
var ErrEmptyIdentifier = errors.New("identifier is required")

func checkIdentifier(id string) error {
	if strings.TrimSpace(id) == "" {
		return ErrEmptyIdentifier
	}
	return nil
}
