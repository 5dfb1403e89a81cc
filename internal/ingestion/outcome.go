package ingestion

import "fmt"

// Reason is the short tag attached to a rejected leaf file.
type Reason string

const (
	ReasonUnsupportedType Reason = "Unsupported type"
	ReasonCorruptArchive  Reason = "Corrupted ZIP"
	ReasonExtractionError Reason = "Extraction error"
	ReasonSaveFailed      Reason = "Save failed"
	ReasonRecordFailed    Reason = "Record failed"
	ReasonTooLarge        Reason = "Too large"
)

// OutcomeKind discriminates Outcome.
type OutcomeKind int

const (
	Ingested OutcomeKind = iota + 1
	Rejected
)

// Outcome is the result for one leaf file. Ingested outcomes carry the
// storage identity and record id, rejected ones carry a Reason.
type Outcome struct {
	Kind       OutcomeKind
	Name       string
	StoredName string
	Path       string
	ImageID    string
	Reason     Reason
}

func ingested(name string, dest Destination, location, imageID string) Outcome {
	return Outcome{
		Kind:       Ingested,
		Name:       name,
		StoredName: dest.StoredName,
		Path:       location,
		ImageID:    imageID,
	}
}

func rejected(name string, reason Reason) Outcome {
	return Outcome{Kind: Rejected, Name: name, Reason: reason}
}

// Descriptor is the caller-facing failure text, e.g. "notes.txt (Unsupported type)".
func (o Outcome) Descriptor() string {
	return fmt.Sprintf("%s (%s)", o.Name, o.Reason)
}

// BatchReport aggregates every outcome of one IngestBatch call in
// encounter order.
type BatchReport struct {
	EventID       string
	TotalIngested int
	Failures      []string
	Outcomes      []Outcome
}

func newBatchReport(eventID string) *BatchReport {
	return &BatchReport{EventID: eventID, Failures: []string{}}
}

func (r *BatchReport) record(o Outcome) {
	r.Outcomes = append(r.Outcomes, o)
	switch o.Kind {
	case Ingested:
		r.TotalIngested++
	case Rejected:
		r.Failures = append(r.Failures, o.Descriptor())
	}
}

// Failed reports whether nothing was ingested and something was rejected.
// An empty batch is not a failure.
func (r *BatchReport) Failed() bool {
	return r.TotalIngested == 0 && len(r.Failures) > 0
}
