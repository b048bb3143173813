package prompts

// Input is a superset of the fields any prompt might need. Missing fields
// render as empty strings (templates use missingkey=zero).
type Input struct {
	DocumentTitle string
	// SourceKind is pdf|audio|video|text, for register hints.
	SourceKind string

	// Excerpts is concatenated chunk text (already truncated by the caller).
	Excerpts string

	// Keyword batching
	BatchText  string
	BatchIndex int
	BatchCount int

	// Quiz
	Abstract      string
	QuestionCount int
}
