package store

import (
	"github.com/google/uuid"
)

// NewID returns a random identifier for records and session tokens.
func NewID() string {
	return uuid.NewString()
}
