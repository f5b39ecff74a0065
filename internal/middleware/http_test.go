package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulseflow/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func TestHTTPMetrics_ObservesMatchedRoute(t *testing.T) {
	r := gin.New()
	r.Use(HTTPMetrics())
	r.GET("/v1/admin/scheduler/tasks", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/admin/scheduler/tasks", nil))
	require.Equal(t, http.StatusOK, w.Code)

	assert.GreaterOrEqual(t, testutil.CollectAndCount(httpDuration, "pulseflow_http_request_duration_seconds"), 1)
}

func TestTrace_PropagatesOrAssigns(t *testing.T) {
	r := gin.New()
	r.Use(Trace())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, TraceID(c)) })

	incoming := uuid.NewString()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, incoming)
	r.ServeHTTP(w, req)
	assert.Equal(t, incoming, w.Header().Get(TraceHeader))
	assert.Equal(t, incoming, w.Body.String())

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(TraceHeader, "not-a-uuid")
	r.ServeHTTP(w, req)
	_, err := uuid.Parse(w.Header().Get(TraceHeader))
	assert.NoError(t, err)
}

func authRouter(devPass bool) *gin.Engine {
	r := gin.New()
	r.GET("/admin", JWTMiddleware(testSecret, devPass), RequireAdmin(), func(c *gin.Context) {
		c.String(http.StatusOK, service.GetOperator(c.Request.Context()))
	})
	return r
}

func get(r http.Handler, header, value string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/admin", nil)
	if header != "" {
		req.Header.Set(header, value)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestJWTMiddleware(t *testing.T) {
	r := authRouter(false)

	admin, err := SignToken(testSecret, service.OperatorInfo{UserID: "1", Name: "alice", Role: service.RoleAdmin}, time.Hour)
	require.NoError(t, err)
	viewer, err := SignToken(testSecret, service.OperatorInfo{UserID: "2", Name: "bob", Role: "viewer"}, time.Hour)
	require.NoError(t, err)
	expired, err := SignToken(testSecret, service.OperatorInfo{UserID: "1", Name: "alice", Role: service.RoleAdmin}, -time.Minute)
	require.NoError(t, err)
	forged, err := SignToken([]byte("other"), service.OperatorInfo{UserID: "1", Name: "mallory", Role: service.RoleAdmin}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"missing header", "", "", http.StatusUnauthorized},
		{"wrong scheme", "Authorization", "Basic abc", http.StatusUnauthorized},
		{"admin token", "Authorization", "Bearer " + admin, http.StatusOK},
		{"viewer token", "Authorization", "Bearer " + viewer, http.StatusForbidden},
		{"expired token", "Authorization", "Bearer " + expired, http.StatusUnauthorized},
		{"foreign signature", "Authorization", "Bearer " + forged, http.StatusUnauthorized},
		{"dev pass disabled", "X-Dev-Pass", "true", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, get(r, tt.header, tt.value).Code)
		})
	}

	w := get(r, "Authorization", "Bearer "+admin)
	assert.Equal(t, "alice", w.Body.String())
}

func TestJWTMiddleware_DevPass(t *testing.T) {
	w := get(authRouter(true), "X-Dev-Pass", "true")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dev-admin", w.Body.String())
}
