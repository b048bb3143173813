package prompts

type PromptName string

const (
	PromptDocumentAbstract PromptName = "document_abstract"
	PromptDocumentKeywords PromptName = "document_keywords"
	PromptDocumentQuiz     PromptName = "document_quiz"
)
