package documents

// Segment is a provenance-carrying slice of extracted text: a page region for
// documents, a timed span for audio.
type Segment struct {
	Text string `json:"text"`
	// Document provenance
	Page *int `json:"page,omitempty"`
	// Audio provenance
	StartSec *float64 `json:"start_sec,omitempty"`
	EndSec   *float64 `json:"end_sec,omitempty"`
	// Confidence when providers return it
	Confidence *float64       `json:"confidence,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Keyword is a weighted term derived during enrichment. Weight is kept in
// [0.1, 1.0] after normalization.
type Keyword struct {
	Term   string  `json:"term"`
	Weight float64 `json:"weight"`
}

func PtrInt(v int) *int           { return &v }
func PtrFloat(v float64) *float64 { return &v }
