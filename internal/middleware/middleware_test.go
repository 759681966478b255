package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/contexttree/canvas-api/pkg/logger"
)

const testSecret = "test-secret"

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(GetUserID(r.Context())))
	})
}

func TestAuth(t *testing.T) {
	valid, err := IssueToken(testSecret, "alice", time.Hour)
	require.NoError(t, err)
	expired, err := IssueToken(testSecret, "alice", -time.Hour)
	require.NoError(t, err)
	otherKey, err := IssueToken("other-secret", "alice", time.Hour)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"missing header", "", http.StatusUnauthorized, `{"error":"missing authorization header"}`},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, `{"error":"invalid authorization header format"}`},
		{"expired", "Bearer " + expired, http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"wrong key", "Bearer " + otherKey, http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"no subject", "Bearer " + noSubject, http.StatusUnauthorized, `{"error":"invalid token"}`},
		{"valid", "Bearer " + valid, http.StatusOK, "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/canvases", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Auth(testSecret)(echoUser()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				assert.JSONEq(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

func TestLoggingPropagatesCorrelationID(t *testing.T) {
	var seen string
	h := Logging(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetCorrelationID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(CorrelationIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, "abc-123", seen)
	assert.Equal(t, "abc-123", rec.Header().Get(CorrelationIDHeader))
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.NotEmpty(t, rec.Header().Get(CorrelationIDHeader))
}

type sampleRequest struct {
	ID   string `json:"id" validate:"required,nodeid"`
	Role string `json:"role" validate:"required,oneof=user assistant"`
}

func TestValidatorMessages(t *testing.T) {
	v := NewValidator()

	require.NoError(t, v.Struct(&sampleRequest{ID: "node_1", Role: "user"}))

	err := v.Struct(&sampleRequest{ID: "bad id!", Role: "system"})
	require.ErrorIs(t, err, ErrValidation)
	assert.Contains(t, err.Error(), "id must be 1-128 letters")
	assert.Contains(t, err.Error(), "role must be one of [user assistant]")

	err = v.Struct(&sampleRequest{})
	assert.Contains(t, err.Error(), "id is required")
}

func TestValidateIDAndContent(t *testing.T) {
	assert.NoError(t, ValidateID("node", "abc-DEF_123"))
	assert.ErrorIs(t, ValidateID("node", "a/b"), ErrValidation)
	assert.ErrorIs(t, ValidateID("node", ""), ErrValidation)

	assert.NoError(t, ValidateMessageContent("hello"))
	assert.ErrorIs(t, ValidateMessageContent("   "), ErrValidation)
	assert.ErrorIs(t, ValidateMessageContent(string([]byte{0xff, 0xfe})), ErrValidation)
}
