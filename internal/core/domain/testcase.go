package domain

import "time"

// VectorDim is the embedding dimension every stored vector must have.
const VectorDim = 384

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority maps free-form spreadsheet values onto the known set.
// Unknown values collapse to empty, which means "no priority filter match".
func ParsePriority(raw string) Priority {
	switch normalizeEnum(raw) {
	case "low", "p3":
		return PriorityLow
	case "medium", "med", "p2":
		return PriorityMedium
	case "high", "p1":
		return PriorityHigh
	case "critical", "blocker", "p0":
		return PriorityCritical
	default:
		return ""
	}
}

func normalizeEnum(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r >= 'A' && r <= 'Z' {
			r += 'a' - 'A'
		}
		if r == ' ' || r == '\t' {
			continue
		}
		out = append(out, r)
	}
	return string(out)
}

// Step is one ordered action of a test case.
type Step struct {
	Number   int    `json:"number"`
	Action   string `json:"action"`
	Expected string `json:"expected,omitempty"`
}

type RecordStatus string

const (
	RecordStatusPending   RecordStatus = "pending"
	RecordStatusReady     RecordStatus = "ready"
	RecordStatusDuplicate RecordStatus = "duplicate"
	RecordStatusFailed    RecordStatus = "failed"
)

// TestCase is a single indexed test-case record. The derived fields
// (Summary, Keywords and the vectors) are produced by enrichment and
// embedding during batch processing; rows parsed from an upload carry
// only the authored fields.
type TestCase struct {
	ID            string   `json:"id"`
	TestCaseID    string   `json:"test_case_id"`
	Feature       string   `json:"feature,omitempty"`
	Description   string   `json:"description"`
	Prerequisites string   `json:"prerequisites,omitempty"`
	Steps         []Step   `json:"steps"`
	Tags          []string `json:"tags,omitempty"`
	Priority      Priority `json:"priority,omitempty"`
	Platform      string   `json:"platform,omitempty"`

	Summary  string   `json:"summary,omitempty"`
	Keywords []string `json:"keywords,omitempty"`

	// MainVector embeds the whole record; absence makes the record
	// ineligible for vector retrieval (fuzzy-only fallback).
	MainVector    []float32   `json:"-"`
	DescVector    []float32   `json:"-"`
	SummaryVector []float32   `json:"-"`
	StepVectors   [][]float32 `json:"-"`

	Popularity int64        `json:"popularity"`
	Status     RecordStatus `json:"status"`
	BatchID    string       `json:"batch_id,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
}

// HasVector reports whether the record can participate in vector retrieval.
func (tc *TestCase) HasVector() bool {
	return len(tc.MainVector) == VectorDim
}

// StepText concatenates step actions and expected results in record order.
func (tc *TestCase) StepText() string {
	var b []byte
	for i, step := range tc.Steps {
		if i > 0 {
			b = append(b, '\n')
		}
		b = append(b, step.Action...)
		if step.Expected != "" {
			b = append(b, " expected: "...)
			b = append(b, step.Expected...)
		}
	}
	return string(b)
}

// Enrichment is the summary/keyword annotation produced for a record
// before embedding. Either field may be empty when enrichment fails;
// an empty enrichment never blocks ingestion.
type Enrichment struct {
	Summary  string   `json:"summary"`
	Keywords []string `json:"keywords"`
}

type BatchStatus string

const (
	BatchStatusUploaded   BatchStatus = "uploaded"
	BatchStatusProcessing BatchStatus = "processing"
	BatchStatusReady      BatchStatus = "ready"
	BatchStatusFailed     BatchStatus = "failed"
)

// Batch tracks one uploaded spreadsheet through async processing.
type Batch struct {
	ID          string      `json:"id"`
	Filename    string      `json:"filename"`
	MimeType    string      `json:"mime_type"`
	StoragePath string      `json:"storage_path"`
	Status      BatchStatus `json:"status"`
	Total       int         `json:"total"`
	Inserted    int         `json:"inserted"`
	Duplicates  int         `json:"duplicates"`
	Failed      int         `json:"failed"`
	Error       string      `json:"error,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// BatchUploadedEvent is the message published when a batch lands and
// consumed by the worker. PublishedAt feeds the queue-lag metric.
type BatchUploadedEvent struct {
	BatchID     string    `json:"batch_id"`
	PublishedAt time.Time `json:"published_at"`
}
