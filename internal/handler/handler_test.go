package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contexttree/canvas-api/internal/llm"
	"github.com/contexttree/canvas-api/internal/middleware"
	"github.com/contexttree/canvas-api/internal/model"
	"github.com/contexttree/canvas-api/internal/prompt"
	"github.com/contexttree/canvas-api/internal/service"
	"github.com/contexttree/canvas-api/internal/session"
	"github.com/contexttree/canvas-api/internal/store"
	"github.com/contexttree/canvas-api/pkg/logger"
)

const testSecret = "handler-test-secret"

type brokenStore struct {
	*store.Memory
	updateErr error
	pingErr   error
}

func (b *brokenStore) UpdateNode(ctx context.Context, node *model.Node) error {
	if b.updateErr != nil {
		return b.updateErr
	}
	return b.Memory.UpdateNode(ctx, node)
}

func (b *brokenStore) Ping(ctx context.Context) error {
	return b.pingErr
}

type scriptedLLM struct {
	reply string
	err   error
}

func (s *scriptedLLM) Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llm.CompletionResponse{Content: s.reply, Model: req.Model}, nil
}

func (s *scriptedLLM) Name() string         { return "scripted" }
func (s *scriptedLLM) Models() []string     { return nil }
func (s *scriptedLLM) DefaultModel() string { return "scripted-1" }

type testServer struct {
	t      *testing.T
	router http.Handler
	store  *brokenStore
	llm    *scriptedLLM
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logger.NewNop()
	st := &brokenStore{Memory: store.NewMemory()}
	client := &scriptedLLM{reply: "Sure."}

	canvases := service.NewCanvasService(st, session.NewRegistry(log), nil, service.RetryPolicy{Attempts: 3, Delay: time.Millisecond}, log)
	messages := service.NewMessageService(canvases, nil, log)

	router := NewRouter(RouterConfig{
		JWTSecret: testSecret,
		Store:     st,
		Canvases:  canvases,
		Messages:  messages,
		Contexts:  service.NewContextService(canvases),
		Versions:  service.NewVersionService(canvases, log),
		LLM:       service.NewLLMService(canvases, messages, prompt.NewAssembler(), client, "", log),
		Logger:    log,
	})
	return &testServer{t: t, router: router, store: st, llm: client}
}

func (s *testServer) do(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		token, err := middleware.IssueToken(testSecret, user, time.Hour)
		require.NoError(s.t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) canvas(user string) string {
	rec := s.do(http.MethodPost, "/api/canvases", user, model.CreateCanvasRequest{Title: "Notes"})
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[model.Canvas](s.t, rec).ID
}

func (s *testServer) node(user, canvasID string, req model.CreateNodeRequest) string {
	rec := s.do(http.MethodPost, "/api/canvases/"+canvasID+"/nodes", user, req)
	require.Equal(s.t, http.StatusCreated, rec.Code, rec.Body.String())
	return decodeBody[model.Node](s.t, rec).ID
}

func TestAPIRequiresToken(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/canvases", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing authorization header"}`, rec.Body.String())
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)

	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/health", "", nil).Code)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/ready", "", nil).Code)

	s.store.pingErr = errors.New("NATS not connected")
	rec := s.do(http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "NATS not connected")
}

func TestAppendMessages(t *testing.T) {
	s := newTestServer(t)
	canvasID := s.canvas("alice")
	nodeID := s.node("alice", canvasID, model.CreateNodeRequest{ID: "chat-1", Type: model.NodeTypeConversation})
	path := "/api/canvases/" + canvasID + "/nodes/" + nodeID + "/messages"

	rec := s.do(http.MethodPost, path, "alice", map[string]string{"role": "user", "content": "Hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, path, "alice", map[string]string{"role": "assistant", "content": "Hi"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[model.MessagesResponse](t, rec)
	require.Len(t, resp.Messages, 1)
	assert.Equal(t, "Hello", resp.Messages[0].User.Content)
	assert.Equal(t, "Hi", resp.Messages[0].Assistant.Content)

	rec = s.do(http.MethodGet, path, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[model.MessagesResponse](t, rec).Messages, 1)
}

func TestAppendMessageStatuses(t *testing.T) {
	s := newTestServer(t)
	canvasID := s.canvas("alice")
	nodeID := s.node("alice", canvasID, model.CreateNodeRequest{Type: model.NodeTypeConversation})
	path := "/api/canvases/" + canvasID + "/nodes/" + nodeID + "/messages"
	valid := map[string]string{"role": "user", "content": "Hello"}

	tests := []struct {
		name   string
		path   string
		user   string
		body   interface{}
		status int
	}{
		{"invalid role", path, "alice", map[string]string{"role": "system", "content": "x"}, http.StatusBadRequest},
		{"missing content", path, "alice", map[string]string{"role": "user"}, http.StatusBadRequest},
		{"not json", path, "alice", "nope", http.StatusBadRequest},
		{"unknown canvas", "/api/canvases/missing/nodes/" + nodeID + "/messages", "alice", valid, http.StatusNotFound},
		{"unknown node", "/api/canvases/" + canvasID + "/nodes/missing/messages", "alice", valid, http.StatusNotFound},
		{"foreign canvas", path, "bob", valid, http.StatusNotFound},
		{"no token", path, "", valid, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, tt.user, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Contains(t, rec.Body.String(), `"error"`)
		})
	}
}

func TestAppendMessagePersistenceFailure(t *testing.T) {
	s := newTestServer(t)
	canvasID := s.canvas("alice")
	nodeID := s.node("alice", canvasID, model.CreateNodeRequest{Type: model.NodeTypeConversation})
	s.store.updateErr = errors.New("disk full")

	rec := s.do(http.MethodPost, "/api/canvases/"+canvasID+"/nodes/"+nodeID+"/messages", "alice",
		map[string]string{"role": "user", "content": "Hello"})
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"error":"failed to persist message"}`, rec.Body.String())
}

func TestLLMProxy(t *testing.T) {
	s := newTestServer(t)
	canvasID := s.canvas("alice")
	ctxID := s.node("alice", canvasID, model.CreateNodeRequest{Type: model.NodeTypeContext, Content: "Be brief.", ContextType: "system"})
	callID := s.node("alice", canvasID, model.CreateNodeRequest{Type: model.NodeTypeLLMCall})

	rec := s.do(http.MethodPost, "/api/canvases/"+canvasID+"/connections", "alice",
		model.ConnectionRequest{ContextNodeID: ctxID, LLMCallNodeID: callID, Priority: 1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/canvases/"+canvasID+"/nodes/"+callID+"/context", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Be brief.")

	body := model.LLMRequest{CanvasID: canvasID, NodeID: callID, Model: "gpt-4o", Message: "Hi"}
	rec = s.do(http.MethodPost, "/api/llm", "alice", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	resp := decodeBody[model.LLMResponse](t, rec)
	assert.Equal(t, "Sure.", resp.Message)
	assert.Equal(t, "gpt-4o", resp.Model)

	s.llm.err = errors.New("status 500 from upstream")
	rec = s.do(http.MethodPost, "/api/llm", "alice", body)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	errResp := decodeBody[model.ErrorResponse](t, rec)
	assert.Equal(t, "LLM request failed", errResp.Error)
	assert.Contains(t, errResp.Details, "status 500 from upstream")

	s.llm.err = llm.ErrUnavailable
	rec = s.do(http.MethodPost, "/api/llm", "alice", body)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = s.do(http.MethodPost, "/api/llm", "alice", model.LLMRequest{CanvasID: canvasID})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPromptPreviewAndTemplates(t *testing.T) {
	s := newTestServer(t)
	canvasID := s.canvas("alice")
	callID := s.node("alice", canvasID, model.CreateNodeRequest{Type: model.NodeTypeLLMCall})

	rec := s.do(http.MethodGet, "/api/prompts/templates", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"rag_focused"`)

	rec = s.do(http.MethodPost, "/api/canvases/"+canvasID+"/nodes/"+callID+"/prompt", "alice",
		model.PromptPreviewRequest{UserMessage: "Hello", Model: "gpt-4"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	preview := decodeBody[model.PromptPreviewResponse](t, rec)
	assert.Equal(t, "Hello", preview.Prompt.Prompt)
	assert.True(t, preview.Validation.Valid)

	rec = s.do(http.MethodPost, "/api/canvases/"+canvasID+"/nodes/"+callID+"/prompt", "alice",
		model.PromptPreviewRequest{UserMessage: "Hello", TemplateID: "missing"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestVersionsAndBranches(t *testing.T) {
	s := newTestServer(t)
	canvasID := s.canvas("alice")
	base := "/api/canvases/" + canvasID

	rec := s.do(http.MethodPost, base+"/versions", "alice", map[string]interface{}{"name": "v1", "nodes": []interface{}{}})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	v1 := decodeBody[map[string]interface{}](t, rec)["id"].(string)

	rec = s.do(http.MethodPost, base+"/versions", "alice", map[string]interface{}{
		"name":  "v2",
		"nodes": []map[string]interface{}{{
			"id":       "n1",
			"type":     "context",
			"parentId": "g1",
			"measured": map[string]interface{}{"width": 200},
		}},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	v2 := decodeBody[map[string]interface{}](t, rec)["id"].(string)

	rec = s.do(http.MethodGet, base+"/versions/"+v2, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t,
		`[{"id":"n1","type":"context","parentId":"g1","measured":{"width":200}}]`,
		string(decodeBody[map[string]json.RawMessage](t, rec)["nodes"]))

	rec = s.do(http.MethodGet, base+"/versions/compare?from="+v1+"&to="+v2, "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	summary := decodeBody[map[string]interface{}](t, rec)["summary"].(map[string]interface{})
	assert.Equal(t, float64(1), summary["nodesAdded"])

	rec = s.do(http.MethodPost, base+"/branches", "alice", model.CreateBranchRequest{Name: "draft", FromVersionID: v1})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = s.do(http.MethodPost, base+"/branches", "alice", model.CreateBranchRequest{Name: "draft"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodDelete, base+"/branches/main", "alice", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(http.MethodPost, base+"/versions/"+v1+"/revert", "alice", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(http.MethodGet, base+"/versions/unknown", "alice", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, base+"/versions", "alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decodeBody[model.VersionsResponse](t, rec).Versions, 3)
}
