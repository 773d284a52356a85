package common

import (
	"strings"

	"github.com/google/uuid"
)

// NewRunID generates a short unique run identifier.
// Format: 8 hex chars (e.g. "3f2a9c41")
func NewRunID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:8]
}
