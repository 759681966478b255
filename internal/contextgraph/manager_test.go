package contextgraph

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("abc"))
	assert.Equal(t, 1, EstimateTokens("abcd"))
	assert.Equal(t, 2, EstimateTokens("abcde"))
	assert.Equal(t, 1, EstimateTokens("héé"), "counts characters, not bytes")
}

func TestAddConnectionSortsByPriority(t *testing.T) {
	m := NewManager()
	m.AddConnection(Connection{ContextNodeID: "c3", LLMCallNodeID: "llm", ContextType: ContextRAG, Priority: 3, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm", ContextType: ContextSystem, Priority: 1, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c2", LLMCallNodeID: "llm", ContextType: ContextRAG, Priority: 2, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c2b", LLMCallNodeID: "llm", ContextType: ContextRAG, Priority: 2, IsActive: true})

	var order []string
	for _, c := range m.Connections("llm") {
		order = append(order, c.ContextNodeID)
	}
	assert.Equal(t, []string{"c1", "c2", "c2b", "c3"}, order)
}

func TestAddConnectionReplacesPair(t *testing.T) {
	m := NewManager()
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm", ContextType: ContextRAG, Priority: 5, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm", ContextType: ContextMemory, Priority: 1, IsActive: true})

	conns := m.Connections("llm")
	require.Len(t, conns, 1)
	assert.Equal(t, ContextMemory, conns[0].ContextType)
	assert.Equal(t, 1, conns[0].Priority)
	assert.False(t, conns[0].CreatedAt.IsZero())
}

func TestAddConnectionDefaultsUnknownType(t *testing.T) {
	m := NewManager()
	c := m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm", ContextType: "weird"})
	assert.Equal(t, ContextCustom, c.ContextType)
}

func TestRemoveConnection(t *testing.T) {
	m := NewManager()
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm", IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c2", LLMCallNodeID: "llm", IsActive: true})

	assert.True(t, m.RemoveConnection("c1", "llm"))
	assert.False(t, m.RemoveConnection("c1", "llm"))
	assert.Equal(t, []string{"c2"}, m.ContextNodesFor("llm"))
}

func TestAssembleContextGroupsAndCounts(t *testing.T) {
	m := NewManager()
	m.SetNodeContent("sys", "You are terse.")
	m.SetNodeContent("rag1", "Doc one.")
	m.SetNodeContent("rag2", "Doc two is longer.")
	m.SetNodeContent("mem", "User likes Go.")
	m.SetNodeContent("off", "inactive content")

	m.AddConnection(Connection{ContextNodeID: "rag2", LLMCallNodeID: "llm", ContextType: ContextRAG, Priority: 4, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "sys", LLMCallNodeID: "llm", ContextType: ContextSystem, Priority: 0, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "rag1", LLMCallNodeID: "llm", ContextType: ContextRAG, Priority: 2, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "mem", LLMCallNodeID: "llm", ContextType: ContextMemory, Priority: 3, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "off", LLMCallNodeID: "llm", ContextType: ContextCustom, Priority: 1, IsActive: false})
	m.AddConnection(Connection{ContextNodeID: "missing", LLMCallNodeID: "llm", ContextType: ContextCustom, Priority: 1, IsActive: true})

	got := m.AssembleContext("llm")

	assert.Equal(t, []string{"You are terse."}, got.SystemInstructions)
	assert.Equal(t, []string{"Doc one.", "Doc two is longer."}, got.RAGData)
	assert.Equal(t, []string{"User likes Go."}, got.ConversationMemory)
	assert.Empty(t, got.CustomContext)

	want := 0
	for _, s := range []string{"You are terse.", "Doc one.", "User likes Go.", "Doc two is longer."} {
		want += (len(s) + 3) / 4
	}
	assert.Equal(t, want, got.TotalTokens)
}

func TestAssembleContextKeepsWhitespaceContent(t *testing.T) {
	m := NewManager()
	m.SetNodeContent("blank", "   ")
	m.SetNodeContent("empty", "")
	m.AddConnection(Connection{ContextNodeID: "blank", LLMCallNodeID: "llm", ContextType: ContextCustom, IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "empty", LLMCallNodeID: "llm", ContextType: ContextCustom, IsActive: true})

	got := m.AssembleContext("llm")
	assert.Equal(t, []string{"   "}, got.CustomContext)
	assert.Equal(t, 1, got.TotalTokens)
}

func TestAssembleContextUnknownTarget(t *testing.T) {
	got := NewManager().AssembleContext("nobody")
	assert.True(t, got.Empty())
	assert.Zero(t, got.TotalTokens)
}

func TestSetConnectionActive(t *testing.T) {
	m := NewManager()
	m.SetNodeContent("c1", strings.Repeat("x", 8))
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm", ContextType: ContextCustom, IsActive: true})

	require.True(t, m.SetConnectionActive("c1", "llm", false))
	assert.True(t, m.AssembleContext("llm").Empty())

	require.True(t, m.SetConnectionActive("c1", "llm", true))
	assert.Equal(t, 2, m.AssembleContext("llm").TotalTokens)
	assert.False(t, m.SetConnectionActive("c9", "llm", true))
}

func TestRemoveNodeDropsConnections(t *testing.T) {
	m := NewManager()
	m.SetNodeContent("c1", "text")
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm1", IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c1", LLMCallNodeID: "llm2", IsActive: true})
	m.AddConnection(Connection{ContextNodeID: "c2", LLMCallNodeID: "llm2", IsActive: true})

	m.RemoveNode("c1")

	_, ok := m.NodeContent("c1")
	assert.False(t, ok)
	assert.Empty(t, m.Connections("llm1"))
	assert.Equal(t, []string{"c2"}, m.ContextNodesFor("llm2"))

	m.RemoveNode("llm2")
	assert.Empty(t, m.Connections("llm2"))
}
