package prompt

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Placeholders understood by Assemble.
const (
	PlaceholderSystemInstructions  = "{{system_instructions}}"
	PlaceholderRAGData             = "{{rag_data}}"
	PlaceholderConversationMemory  = "{{conversation_memory}}"
	PlaceholderCustomContext       = "{{custom_context}}"
	PlaceholderConversationHistory = "{{conversation_history}}"
	PlaceholderUserMessage         = "{{user_message}}"
)

// DefaultTemplateID is used when a request names no template.
const DefaultTemplateID = "default"

// Template is a named prompt layout.
type Template struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description"`
	Body        string   `json:"template" yaml:"template"`
	Variables   []string `json:"variables,omitempty" yaml:"variables"`
}

func builtinTemplates() []Template {
	return []Template{
		{
			ID:          DefaultTemplateID,
			Name:        "Default",
			Description: "All context sections followed by the conversation.",
			Body: PlaceholderSystemInstructions + "\n\n" +
				PlaceholderRAGData + "\n\n" +
				PlaceholderConversationMemory + "\n\n" +
				PlaceholderCustomContext + "\n\n" +
				PlaceholderConversationHistory + "\n\n" +
				PlaceholderUserMessage,
			Variables: []string{"system_instructions", "rag_data", "conversation_memory", "custom_context", "conversation_history", "user_message"},
		},
		{
			ID:          "rag_focused",
			Name:        "RAG focused",
			Description: "Answers strictly from the retrieved documents.",
			Body: PlaceholderSystemInstructions + "\n\n" +
				"Answer using only the information below. If it is not sufficient, say so.\n\n" +
				PlaceholderRAGData + "\n\n" +
				PlaceholderCustomContext + "\n\n" +
				PlaceholderUserMessage,
			Variables: []string{"system_instructions", "rag_data", "custom_context", "user_message"},
		},
		{
			ID:          "conversational",
			Name:        "Conversational",
			Description: "Prioritises memory and the running conversation.",
			Body: PlaceholderSystemInstructions + "\n\n" +
				PlaceholderConversationMemory + "\n\n" +
				PlaceholderConversationHistory + "\n\n" +
				PlaceholderUserMessage,
			Variables: []string{"system_instructions", "conversation_memory", "conversation_history", "user_message"},
		},
		{
			ID:          "analytical",
			Name:        "Analytical",
			Description: "Asks for a structured, step by step analysis.",
			Body: PlaceholderSystemInstructions + "\n\n" +
				"Analyse the request step by step, cite the context you rely on and finish with a short conclusion.\n\n" +
				PlaceholderRAGData + "\n\n" +
				PlaceholderCustomContext + "\n\n" +
				PlaceholderConversationHistory + "\n\n" +
				PlaceholderUserMessage,
			Variables: []string{"system_instructions", "rag_data", "custom_context", "conversation_history", "user_message"},
		},
	}
}

type templateFile struct {
	Templates []Template `yaml:"templates"`
}

// LoadTemplatesFile reads extra templates from a YAML document of the form
//
//	templates:
//	  - id: summary
//	    name: Summary
//	    template: "{{conversation_history}}\n\nSummarise the above."
func LoadTemplatesFile(path string) ([]Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}

	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse template file: %w", err)
	}
	return file.Templates, nil
}
