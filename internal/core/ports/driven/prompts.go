package driven

// PromptStore provides access to LLM prompt templates.
// Implementations may load prompts from files or embed them in the binary.
type PromptStore interface {
	// Load returns the prompt template for the given name.
	// Unknown names return an error.
	Load(name string) (string, error)

	// Reload clears any cached prompts, forcing fresh loads on next access.
	Reload()
}

// Well-known prompt names.
const (
	// PromptMetadataExtraction asks for one typed fact. The template expects
	// three %s placeholders: description, expected format, context text.
	PromptMetadataExtraction = "metadata_extraction"

	// PromptAnswerSystem is the system prompt for answer synthesis.
	// It has no placeholders.
	PromptAnswerSystem = "answer_system"

	// PromptAnswerUser wraps context and question. The template expects two
	// %s placeholders: context, question.
	PromptAnswerUser = "answer_user"
)
