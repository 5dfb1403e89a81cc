package ingestion

import "time"

// EventTypeImageIngested tags ImageIngestedEvent messages.
const EventTypeImageIngested = "image.ingested"

// ImageIngestedEvent is emitted once an image file is stored and its record
// exists. Downstream embedding workers consume it.
type ImageIngestedEvent struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	OwnerID   string    `json:"owner_id"`
	FileName  string    `json:"file_name"`
	ObjectKey string    `json:"object_key"`
	Location  string    `json:"location"`
	SizeBytes int64     `json:"size_bytes"`
	Checksum  string    `json:"checksum"`
	CreatedAt time.Time `json:"created_at"`
}
