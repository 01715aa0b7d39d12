package utils

import (
	"github.com/google/uuid"
)

// NewServerID returns a fresh identifier for this server instance.
func NewServerID() string {
	return uuid.NewString()
}

// ServerIDOr returns configured when set, otherwise a fresh instance id.
func ServerIDOr(configured string) string {
	if configured != "" {
		return configured
	}
	return NewServerID()
}
