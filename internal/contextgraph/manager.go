// Package contextgraph tracks which context nodes feed which LLM-call nodes
// on a canvas and assembles their content into a context bundle.
package contextgraph

import (
	"sort"
	"sync"
	"time"
	"unicode/utf8"
)

// ContextType classifies what a context node contributes.
type ContextType string

const (
	ContextSystem ContextType = "system"
	ContextRAG    ContextType = "rag"
	ContextMemory ContextType = "memory"
	ContextCustom ContextType = "custom"
)

// Valid reports whether t is a known context type.
func (t ContextType) Valid() bool {
	switch t {
	case ContextSystem, ContextRAG, ContextMemory, ContextCustom:
		return true
	}
	return false
}

// Connection links a context node to an LLM-call node.
type Connection struct {
	ContextNodeID string      `json:"contextNodeId"`
	LLMCallNodeID string      `json:"llmCallNodeId"`
	ContextType   ContextType `json:"contextType"`
	Priority      int         `json:"priority"`
	IsActive      bool        `json:"isActive"`
	CreatedAt     time.Time   `json:"createdAt"`
}

// AssembledContext groups context fragments by type.
type AssembledContext struct {
	SystemInstructions []string `json:"systemInstructions"`
	RAGData            []string `json:"ragData"`
	ConversationMemory []string `json:"conversationMemory"`
	CustomContext      []string `json:"customContext"`
	TotalTokens        int      `json:"totalTokens"`
}

// Empty reports whether no fragment was assembled.
func (c AssembledContext) Empty() bool {
	return len(c.SystemInstructions)+len(c.RAGData)+len(c.ConversationMemory)+len(c.CustomContext) == 0
}

// EstimateTokens approximates a token count as one token per four characters,
// rounded up. It is not a tokenizer.
func EstimateTokens(s string) int {
	n := utf8.RuneCountInString(s)
	return (n + 3) / 4
}

// Manager holds the connection set and context node content of one canvas.
// It is safe for concurrent use.
type Manager struct {
	mu       sync.RWMutex
	byTarget map[string][]Connection
	content  map[string]string
	now      func() time.Time
}

// NewManager creates an empty manager.
func NewManager() *Manager {
	return &Manager{
		byTarget: make(map[string][]Connection),
		content:  make(map[string]string),
		now:      time.Now,
	}
}

// AddConnection inserts c, replacing any existing connection for the same
// context/LLM node pair, and keeps the target's connections ordered by
// ascending priority. Ties keep insertion order.
func (m *Manager) AddConnection(c Connection) Connection {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = m.now()
	}
	if !c.ContextType.Valid() {
		c.ContextType = ContextCustom
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.byTarget[c.LLMCallNodeID]
	kept := conns[:0:0]
	for _, existing := range conns {
		if existing.ContextNodeID != c.ContextNodeID {
			kept = append(kept, existing)
		}
	}
	kept = append(kept, c)
	sort.SliceStable(kept, func(i, j int) bool {
		return kept[i].Priority < kept[j].Priority
	})
	m.byTarget[c.LLMCallNodeID] = kept

	return c
}

// RemoveConnection drops the connection between the two nodes and reports
// whether one existed.
func (m *Manager) RemoveConnection(contextNodeID, llmCallNodeID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.byTarget[llmCallNodeID]
	for i, c := range conns {
		if c.ContextNodeID == contextNodeID {
			m.byTarget[llmCallNodeID] = append(conns[:i:i], conns[i+1:]...)
			if len(m.byTarget[llmCallNodeID]) == 0 {
				delete(m.byTarget, llmCallNodeID)
			}
			return true
		}
	}
	return false
}

// SetConnectionActive toggles a connection without removing it.
func (m *Manager) SetConnectionActive(contextNodeID, llmCallNodeID string, active bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	conns := m.byTarget[llmCallNodeID]
	for i := range conns {
		if conns[i].ContextNodeID == contextNodeID {
			conns[i].IsActive = active
			return true
		}
	}
	return false
}

// Connections returns the target's connections in assembly order.
func (m *Manager) Connections(llmCallNodeID string) []Connection {
	m.mu.RLock()
	defer m.mu.RUnlock()

	conns := m.byTarget[llmCallNodeID]
	out := make([]Connection, len(conns))
	copy(out, conns)
	return out
}

// ContextNodesFor returns the ids of active context nodes feeding the target.
func (m *Manager) ContextNodesFor(llmCallNodeID string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var ids []string
	for _, c := range m.byTarget[llmCallNodeID] {
		if c.IsActive {
			ids = append(ids, c.ContextNodeID)
		}
	}
	return ids
}

// SetNodeContent stores the text a context node contributes.
func (m *Manager) SetNodeContent(nodeID, content string) {
	m.mu.Lock()
	m.content[nodeID] = content
	m.mu.Unlock()
}

// NodeContent returns the stored text of a context node.
func (m *Manager) NodeContent(nodeID string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.content[nodeID]
	return c, ok
}

// RemoveNode forgets a node's content and every connection touching it.
func (m *Manager) RemoveNode(nodeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.content, nodeID)
	delete(m.byTarget, nodeID)
	for target, conns := range m.byTarget {
		kept := conns[:0]
		for _, c := range conns {
			if c.ContextNodeID != nodeID {
				kept = append(kept, c)
			}
		}
		if len(kept) == 0 {
			delete(m.byTarget, target)
		} else {
			m.byTarget[target] = kept
		}
	}
}

// AssembleContext collects the content of the target's active connections in
// priority order. Connections whose context node has no stored content are
// skipped. Whitespace-only content still counts.
func (m *Manager) AssembleContext(llmCallNodeID string) AssembledContext {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out AssembledContext
	for _, c := range m.byTarget[llmCallNodeID] {
		if !c.IsActive {
			continue
		}
		text, ok := m.content[c.ContextNodeID]
		if !ok || text == "" {
			continue
		}

		switch c.ContextType {
		case ContextSystem:
			out.SystemInstructions = append(out.SystemInstructions, text)
		case ContextRAG:
			out.RAGData = append(out.RAGData, text)
		case ContextMemory:
			out.ConversationMemory = append(out.ConversationMemory, text)
		default:
			out.CustomContext = append(out.CustomContext, text)
		}
		out.TotalTokens += EstimateTokens(text)
	}
	return out
}
