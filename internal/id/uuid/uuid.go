// Package uuid generates run identifiers.
package uuid

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUID v7 run identifiers, so run ids sort
// in start order alongside their run directories.
type Generator struct{}

// New creates a new Generator.
func New() *Generator {
	return &Generator{}
}

// NewID returns a UUID v7 string, falling back to v4 if the v7 source fails.
func (Generator) NewID() (string, error) {
	id, err := uuid.NewV7()
	if err == nil {
		return id.String(), nil
	}
	v4, v4Err := uuid.NewRandom()
	if v4Err != nil {
		return "", fmt.Errorf("generate run id: %w", errors.Join(err, v4Err))
	}
	return v4.String(), nil
}
