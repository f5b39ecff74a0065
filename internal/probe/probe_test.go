package probe

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"pulseflow/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProber_StatusClassification(t *testing.T) {
	tests := []struct {
		name   string
		code   int
		status string
	}{
		{"ok", http.StatusOK, model.ProbeUp},
		{"no content", http.StatusNoContent, model.ProbeUp},
		{"redirect", http.StatusFound, model.ProbeUp},
		{"not found", http.StatusNotFound, model.ProbeDown},
		{"server error", http.StatusBadGateway, model.ProbeDown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.code == http.StatusFound {
					w.Header().Set("Location", "/elsewhere")
				}
				w.WriteHeader(tt.code)
			}))
			defer srv.Close()

			res := NewHTTPProber(time.Second).Check(context.Background(), srv.URL, 0)
			assert.Equal(t, tt.status, res.Status)
			assert.Equal(t, tt.code, res.StatusCode)
		})
	}
}

func TestHTTPProber_TransportErrorIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	res := NewHTTPProber(time.Second).Check(context.Background(), addr, 0)
	assert.Equal(t, model.ProbeDown, res.Status)
	assert.NotEmpty(t, res.Error)
}

func TestHTTPProber_TimeoutIsDown(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	res := NewHTTPProber(time.Second).Check(context.Background(), srv.URL, 30*time.Millisecond)
	assert.Equal(t, model.ProbeDown, res.Status)
}

func TestHTTPProber_RetryStopsAtFirstSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := NewHTTPProber(time.Second).CheckWithRetry(context.Background(), srv.URL, 0, 5, time.Millisecond)
	assert.True(t, res.Up())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
}

func TestHTTPProber_RetryExhaustion(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	res := NewHTTPProber(time.Second).CheckWithRetry(context.Background(), srv.URL, 0, 3, time.Millisecond)
	assert.False(t, res.Up())
	assert.Equal(t, 3, res.Attempts)
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, "HTTP 500", res.Error)
}

func TestTLSInspector_ReadsLeafCertificate(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	info, err := NewTLSInspector(port, time.Second).Inspect(context.Background(), host)
	require.NoError(t, err)

	leaf := srv.Certificate()
	assert.Equal(t, leaf.NotAfter, info.NotAfter)
	assert.Equal(t, leaf.Issuer.String(), info.Issuer)
	assert.Contains(t, info.SubjectAltNames, "127.0.0.1")
	assert.Len(t, info.Fingerprint, 32*3-1)
	assert.NotZero(t, info.PublicKeyBits)
}

func TestTLSInspector_HandshakeFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	u, _ := url.Parse(srv.URL)
	host, portStr, _ := net.SplitHostPort(u.Host)
	port, _ := strconv.Atoi(portStr)

	_, err := NewTLSInspector(port, 500*time.Millisecond).Inspect(context.Background(), host)
	assert.Error(t, err)
}

func TestDaysRemaining(t *testing.T) {
	now := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, 7, DaysRemaining(now.Add(7*24*time.Hour+time.Hour), now))
	assert.Equal(t, 6, DaysRemaining(now.Add(7*24*time.Hour-time.Minute), now))
	assert.Equal(t, 0, DaysRemaining(now.Add(time.Hour), now))
	assert.Equal(t, -1, DaysRemaining(now.Add(-time.Hour), now))
	assert.Equal(t, -3, DaysRemaining(now.Add(-49*time.Hour), now))
}

func TestHostFromURL(t *testing.T) {
	host, err := HostFromURL("https://status.example.com:8443/health")
	require.NoError(t, err)
	assert.Equal(t, "status.example.com", host)

	host, err = HostFromURL("example.org")
	require.NoError(t, err)
	assert.Equal(t, "example.org", host)

	_, err = HostFromURL("https://")
	assert.Error(t, err)
}
