package prompt

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contexttree/canvas-api/internal/contextgraph"
)

func TestAssembleUnknownTemplate(t *testing.T) {
	a := NewAssembler()
	_, err := a.Assemble(Input{TemplateID: "nope"})
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestAssembleDefaultTemplate(t *testing.T) {
	a := NewAssembler()

	res, err := a.Assemble(Input{
		Context: contextgraph.AssembledContext{
			SystemInstructions: []string{"Be brief."},
			RAGData:            []string{"Paris is the capital of France."},
		},
		History: []HistoryMessage{
			{Role: "user", Content: "Hi"},
			{Role: "assistant", Content: "Hello"},
		},
		UserMessage: "What is the capital of France?",
	})
	require.NoError(t, err)

	want := "Be brief.\n\n" +
		"Relevant information:\nParis is the capital of France.\n\n" +
		"Conversation so far:\nUser: Hi\nAssistant: Hello\n\n" +
		"What is the capital of France?"
	assert.Equal(t, want, res.Prompt)
	assert.Equal(t, DefaultTemplateID, res.TemplateID)
	assert.Equal(t, contextgraph.EstimateTokens("Be brief."), res.Tokens.SystemInstructions)
	assert.Zero(t, res.Tokens.ConversationMemory)
	assert.Equal(t, contextgraph.EstimateTokens(want), res.Tokens.Total)
}

func TestAssembleCollapsesBlankRuns(t *testing.T) {
	a := NewAssembler()
	require.NoError(t, a.Register(Template{
		ID:   "gappy",
		Body: "{{system_instructions}}\n\n\n\n\n{{user_message}}\n\n\n",
	}))

	res, err := a.Assemble(Input{TemplateID: "gappy", UserMessage: "question"})
	require.NoError(t, err)
	assert.Equal(t, "question", res.Prompt)
	assert.NotContains(t, res.Prompt, "\n\n\n")

	res, err = a.Assemble(Input{
		TemplateID:  "gappy",
		Context:     contextgraph.AssembledContext{SystemInstructions: []string{"sys"}},
		UserMessage: "question",
	})
	require.NoError(t, err)
	assert.Equal(t, "sys\n\nquestion", res.Prompt)
}

func TestRegisterRejectsIncompleteTemplates(t *testing.T) {
	a := NewAssembler()
	assert.Error(t, a.Register(Template{Body: "x"}))
	assert.Error(t, a.Register(Template{ID: "x", Body: "  "}))
}

func TestTemplatesKeepsRegistrationOrder(t *testing.T) {
	a := NewAssembler()
	require.NoError(t, a.Register(Template{ID: "zzz", Body: "{{user_message}}"}))
	require.NoError(t, a.Register(Template{ID: DefaultTemplateID, Name: "Replaced", Body: "{{user_message}}"}))

	list := a.Templates()
	require.NotEmpty(t, list)
	assert.Equal(t, DefaultTemplateID, list[0].ID)
	assert.Equal(t, "Replaced", list[0].Name)
	assert.Equal(t, "zzz", list[len(list)-1].ID)
}

func TestLoadTemplatesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	doc := strings.Join([]string{
		"templates:",
		"  - id: summary",
		"    name: Summary",
		"    template: \"{{conversation_history}}\\n\\nSummarise the above.\"",
		"    variables: [conversation_history]",
	}, "\n")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	list, err := LoadTemplatesFile(path)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "summary", list[0].ID)
	assert.Equal(t, "{{conversation_history}}\n\nSummarise the above.", list[0].Body)

	_, err = LoadTemplatesFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidatePromptLength(t *testing.T) {
	v := ValidatePromptLength(1000, "gpt-4")
	assert.True(t, v.Valid)
	assert.Empty(t, v.Warnings)
	assert.Equal(t, 8192, v.Limit)

	v = ValidatePromptLength(7000, "gpt-4")
	assert.True(t, v.Valid)
	assert.Len(t, v.Warnings, 1)

	v = ValidatePromptLength(8192, "gpt-4")
	assert.True(t, v.Valid, "exactly at the limit is still valid")

	v = ValidatePromptLength(9000, "gpt-4")
	assert.False(t, v.Valid)
	assert.Len(t, v.Warnings, 1)

	v = ValidatePromptLength(100, "some-local-model")
	assert.Equal(t, DefaultModelLimit, v.Limit)
}

func TestRoleLabel(t *testing.T) {
	tests := map[string]string{
		"user":      "User",
		"assistant": "Assistant",
		"":          "Unknown",
		"tool":      "Tool",
		"élève":     "Élève",
		"ünder":     "Ünder",
	}
	for role, want := range tests {
		assert.Equal(t, want, roleLabel(role), role)
	}
}
