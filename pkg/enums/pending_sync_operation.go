package enums

import (
	"fmt"
	"strings"
)

// PendingSyncOperation tags a cart line with the remote mutation it still owes
// the server once cart sync exists.
type PendingSyncOperation string

const (
	PendingSyncAdd    PendingSyncOperation = "ADD"
	PendingSyncUpdate PendingSyncOperation = "UPDATE"
	PendingSyncRemove PendingSyncOperation = "REMOVE"
)

var validPendingSyncOperations = []PendingSyncOperation{
	PendingSyncAdd,
	PendingSyncUpdate,
	PendingSyncRemove,
}

// String implements fmt.Stringer.
func (p PendingSyncOperation) String() string {
	return string(p)
}

// IsValid reports whether the value is known.
func (p PendingSyncOperation) IsValid() bool {
	for _, candidate := range validPendingSyncOperations {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePendingSyncOperation converts raw input into a PendingSyncOperation.
// Matching is case-insensitive.
func ParsePendingSyncOperation(value string) (PendingSyncOperation, error) {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	for _, candidate := range validPendingSyncOperations {
		if string(candidate) == normalized {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid pending sync operation %q", value)
}
