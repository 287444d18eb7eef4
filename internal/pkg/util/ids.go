package util

import "github.com/google/uuid"

// NewID returns prefix_<uuid>, e.g. "node_3f2c...".
func NewID(prefix string) string {
	return prefix + "_" + uuid.NewString()
}
