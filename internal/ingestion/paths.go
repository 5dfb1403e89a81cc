package ingestion

import (
	"path"
	"strings"

	"github.com/google/uuid"
)

// Destination is the storage identity allocated to one leaf file.
type Destination struct {
	StoredName string
	Key        string
}

// AllocatePath returns a fresh destination under events/<eventID>/raw/.
// The name is a random UUID plus the lower-cased extension, so caller
// supplied names never reach the filesystem and concurrent batches cannot
// collide.
func AllocatePath(eventID, ext string) Destination {
	name := uuid.NewString() + strings.ToLower(ext)
	return Destination{
		StoredName: name,
		Key:        path.Join(eventPrefix(eventID), name),
	}
}

func eventPrefix(eventID string) string {
	return path.Join("events", eventID, "raw")
}
