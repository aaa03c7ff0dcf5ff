package app

import "github.com/google/uuid"

// newID returns a prefixed identifier, e.g. EXEC-<uuid>.
func newID(prefix string) string {
	return prefix + "-" + uuid.NewString()
}
