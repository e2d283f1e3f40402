package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"support-dashboard/internal/mocks"
	"support-dashboard/internal/telemetry"
)

type sessionCount int

func (n sessionCount) Len() int { return int(n) }

func TestDebugRoutesDisabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	RegisterDebugRoutes(r, nil, sessionCount(2), false)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestDebugRoutesEnabled(t *testing.T) {
	gin.SetMode(gin.TestMode)
	publisher := new(mocks.PublisherMock)
	audit := telemetry.NewAuditEmitter(publisher, "audit.dashboard", "support-dashboard", "development")
	r := gin.New()
	RegisterDebugRoutes(r, audit, sessionCount(2), true)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/sessions", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"sessions":2}`, rec.Body.String())

	publisher.On("Publish", mock.Anything, "audit.dashboard", mock.MatchedBy(func(env telemetry.AuditEnvelope) bool {
		return env.Payload.Action == "debug.audit_test" && env.Payload.Level == "DEBUG"
	}), mock.Anything).Return(nil).Once()

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/audit-test", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	publisher.AssertExpectations(t)
}
