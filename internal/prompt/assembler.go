// Package prompt fills prompt templates with assembled canvas context and
// conversation history.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"unicode"
	"unicode/utf8"

	"github.com/contexttree/canvas-api/internal/contextgraph"
)

// ErrTemplateNotFound is returned for an unknown template id.
var ErrTemplateNotFound = errors.New("template not found")

var excessNewlines = regexp.MustCompile(`\n{3,}`)

// HistoryMessage is one message of the conversation so far.
type HistoryMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Input is everything Assemble needs.
type Input struct {
	TemplateID  string
	Context     contextgraph.AssembledContext
	History     []HistoryMessage
	UserMessage string
}

// TokenBreakdown holds per-source token estimates. Total covers the whole
// rendered prompt, template text included.
type TokenBreakdown struct {
	SystemInstructions  int `json:"systemInstructions"`
	RAGData             int `json:"ragData"`
	ConversationMemory  int `json:"conversationMemory"`
	CustomContext       int `json:"customContext"`
	ConversationHistory int `json:"conversationHistory"`
	UserMessage         int `json:"userMessage"`
	Total               int `json:"total"`
}

// Result is a rendered prompt.
type Result struct {
	TemplateID string         `json:"templateId"`
	Prompt     string         `json:"prompt"`
	Tokens     TokenBreakdown `json:"tokens"`
}

// Assembler renders prompts from a set of templates. It is safe for
// concurrent use.
type Assembler struct {
	mu        sync.RWMutex
	templates map[string]Template
	order     []string
}

// NewAssembler creates an assembler preloaded with the built-in templates.
func NewAssembler() *Assembler {
	a := &Assembler{templates: make(map[string]Template)}
	for _, t := range builtinTemplates() {
		_ = a.Register(t)
	}
	return a
}

// Register adds or replaces a template.
func (a *Assembler) Register(t Template) error {
	if strings.TrimSpace(t.ID) == "" {
		return errors.New("template id is required")
	}
	if strings.TrimSpace(t.Body) == "" {
		return fmt.Errorf("template %q has an empty body", t.ID)
	}
	if t.Name == "" {
		t.Name = t.ID
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.templates[t.ID]; !exists {
		a.order = append(a.order, t.ID)
	}
	a.templates[t.ID] = t
	return nil
}

// Template looks up a template by id.
func (a *Assembler) Template(id string) (Template, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	t, ok := a.templates[id]
	return t, ok
}

// Templates lists templates in registration order.
func (a *Assembler) Templates() []Template {
	a.mu.RLock()
	defer a.mu.RUnlock()

	out := make([]Template, 0, len(a.order))
	for _, id := range a.order {
		out = append(out, a.templates[id])
	}
	return out
}

// Assemble renders the named template. An empty template id selects the
// default template.
func (a *Assembler) Assemble(in Input) (*Result, error) {
	id := in.TemplateID
	if id == "" {
		id = DefaultTemplateID
	}
	tmpl, ok := a.Template(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, id)
	}

	system := section("", in.Context.SystemInstructions)
	rag := section("Relevant information:", in.Context.RAGData)
	memory := section("Conversation memory:", in.Context.ConversationMemory)
	custom := section("Additional context:", in.Context.CustomContext)
	history := formatHistory(in.History)

	replacer := strings.NewReplacer(
		PlaceholderSystemInstructions, system,
		PlaceholderRAGData, rag,
		PlaceholderConversationMemory, memory,
		PlaceholderCustomContext, custom,
		PlaceholderConversationHistory, history,
		PlaceholderUserMessage, in.UserMessage,
	)
	rendered := replacer.Replace(tmpl.Body)
	rendered = strings.TrimSpace(excessNewlines.ReplaceAllString(rendered, "\n\n"))

	return &Result{
		TemplateID: id,
		Prompt:     rendered,
		Tokens: TokenBreakdown{
			SystemInstructions:  contextgraph.EstimateTokens(system),
			RAGData:             contextgraph.EstimateTokens(rag),
			ConversationMemory:  contextgraph.EstimateTokens(memory),
			CustomContext:       contextgraph.EstimateTokens(custom),
			ConversationHistory: contextgraph.EstimateTokens(history),
			UserMessage:         contextgraph.EstimateTokens(in.UserMessage),
			Total:               contextgraph.EstimateTokens(rendered),
		},
	}, nil
}

func section(heading string, fragments []string) string {
	if len(fragments) == 0 {
		return ""
	}
	body := strings.Join(fragments, "\n\n")
	if heading == "" {
		return body
	}
	return heading + "\n" + body
}

func formatHistory(history []HistoryMessage) string {
	if len(history) == 0 {
		return ""
	}
	lines := make([]string, 0, len(history))
	for _, m := range history {
		lines = append(lines, roleLabel(m.Role)+": "+m.Content)
	}
	return "Conversation so far:\n" + strings.Join(lines, "\n")
}

func roleLabel(role string) string {
	switch role {
	case "user":
		return "User"
	case "assistant":
		return "Assistant"
	case "system":
		return "System"
	case "":
		return "Unknown"
	default:
		r, size := utf8.DecodeRuneInString(role)
		return string(unicode.ToUpper(r)) + role[size:]
	}
}
