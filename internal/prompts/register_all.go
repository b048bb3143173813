package prompts

func init() {
	registerAll()
}

func registerAll() {
	RegisterSpec(Spec{
		Name:       PromptDocumentAbstract,
		Version:    1,
		SchemaName: "document_abstract",
		Schema:     DocumentAbstractSchema,
		System: `
You write faithful abstracts for a document library.
Everything you state must be grounded in the excerpts; never invent findings, names, or numbers.
Return JSON only.`,
		User: `
TITLE: {{.DocumentTitle}}
SOURCE KIND: {{.SourceKind}}

EXCERPTS (in document order, possibly truncated):
{{.Excerpts}}

Output rules:
- abstract_md: 4-10 sentence markdown abstract, no headings, no bullet lists.
- Cover what the document is about, its main claims or content, and who it is for.
- For lecture/meeting transcripts, summarize what was discussed, not the audio quality.
- warnings: e.g. truncated_input, low_text_signal, off_topic_excerpts.`,
		Validators: []Validator{
			RequireNonEmpty("Excerpts", func(in Input) string { return in.Excerpts }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptDocumentKeywords,
		Version:    1,
		SchemaName: "document_keywords",
		Schema:     DocumentKeywordsSchema,
		System: `
You extract index keywords with salience weights from one batch of a document's text.
Other batches of the same document are processed separately; weight terms by this batch alone.
Return JSON only.`,
		User: `
TITLE: {{.DocumentTitle}}
BATCH: {{.BatchIndex}} of {{.BatchCount}}

TEXT:
{{.BatchText}}

Output rules:
- keywords: 20-30 entries {term, weight}.
- term: lowercase, 1-4 words, letters/digits/spaces/hyphens only; no stop words alone; no duplicates.
- weight: 0..1 relative salience within this batch (1 = central topic).
- Prefer domain terms over generic ones ("gradient descent" over "method").`,
		Validators: []Validator{
			RequireNonEmpty("BatchText", func(in Input) string { return in.BatchText }),
		},
	})

	RegisterSpec(Spec{
		Name:       PromptDocumentQuiz,
		Version:    1,
		SchemaName: "document_quiz",
		Schema:     DocumentQuizSchema,
		System: `
You write multiple-choice comprehension quizzes.
Every question must be answerable from the excerpts alone, with exactly one defensible correct option.
Return JSON only.`,
		User: `
TITLE: {{.DocumentTitle}}
{{if .Abstract}}ABSTRACT:
{{.Abstract}}

{{end}}EXCERPTS:
{{.Excerpts}}

Output rules:
- questions: exactly {{.QuestionCount}} entries, ordered roughly by where their material appears.
- prompt_md: one clear question, no "all of the above" constructions.
- options: exactly 4; distractors plausible but wrong per the excerpts.
- correct_index: 0-3, position of the correct option.
- explanation_md: 1-2 sentences citing what in the text makes the answer right.`,
		Validators: []Validator{
			RequireNonEmpty("Excerpts", func(in Input) string { return in.Excerpts }),
			RequireIntInRange("QuestionCount", func(in Input) int { return in.QuestionCount }, 1, 20),
		},
	})
}
