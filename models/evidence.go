package models

// Availability is the normalized stock state derived for a capture.
type Availability string

const (
	InStock    Availability = "IN_STOCK"
	OutOfStock Availability = "OUT_OF_STOCK"
)

// CaptureTarget describes one page to capture. Built from CLI or CSV input
// and consumed exactly once per job.
type CaptureTarget struct {
	URL        string
	ReturnsURL string // optional returns/refunds page, captured separately
	TimeoutMs  int
	Headless   bool
}

// EvidenceRecord is the persisted summary of one capture job. It is created
// at job start, filled in through the pipeline, and written exactly once.
// A record is always written, whatever went wrong; failures land in Errors.
type EvidenceRecord struct {
	URL                 string         `json:"url"`
	Ts                  int64          `json:"ts"` // capture time, epoch seconds
	Title               *string        `json:"title"`
	Canonical           *string        `json:"canonical"`
	VisiblePrice        *string        `json:"visible_price"`
	VisibleAvailability *Availability  `json:"visible_availability"`
	SchemaProduct       map[string]any `json:"schema_product"`
	SchemaOffer         map[string]any `json:"schema_offer"`
	Errors              []string       `json:"errors"`
}

// NewEvidenceRecord returns a record with the always-known fields set and
// Errors initialized so it serializes as [] rather than null.
func NewEvidenceRecord(url string, ts int64) *EvidenceRecord {
	return &EvidenceRecord{
		URL:    url,
		Ts:     ts,
		Errors: []string{},
	}
}

// AddError appends a coded error string ("CODE: message") to the record.
func (r *EvidenceRecord) AddError(code, message string) {
	r.Errors = append(r.Errors, code+": "+message)
}

// BatchResult holds one record per submitted target, in submission order
// regardless of completion order, so reports can be joined row-for-row
// against the input.
type BatchResult struct {
	RunID   string
	Records []*EvidenceRecord
}
