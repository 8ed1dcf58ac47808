package core

import (
	"fmt"

	"github.com/google/uuid"
)

// NewInstanceID returns a fresh identifier for a device or backend instance.
func NewInstanceID() uuid.UUID {
	return uuid.New()
}

// DebugName returns name when set, else a unique name for an object of the given kind.
func DebugName(kind, name string) string {
	if name != "" {
		return name
	}
	id := uuid.New().String()
	return fmt.Sprintf("%s-%s", kind, id[:8])
}
