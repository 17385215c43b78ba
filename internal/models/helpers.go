package models

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// NewID returns a short random identifier with the given prefix, e.g. "job-1a2b3c4".
func NewID(prefix string) string {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")[:7]
	if prefix == "" {
		return id
	}
	return prefix + "-" + id
}

// RecordIDString safely extracts the string ID from a SurrealDB RecordID.
// Returns an error if the ID is not a string type.
func RecordIDString(id surrealmodels.RecordID) (string, error) {
	s, ok := id.ID.(string)
	if !ok {
		return "", fmt.Errorf("unexpected ID type: %T (expected string)", id.ID)
	}
	return s, nil
}
