package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"pulseflow/internal/buffer"
	"pulseflow/internal/dto/resp"
	"pulseflow/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestReload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/admin/scheduler/reload", r.URL.Path)
		assert.Equal(t, "Bearer secret-token", r.Header.Get("Authorization"))
		writeJSON(w, http.StatusOK, resp.ReloadResponse{Tasks: []resp.TaskItem{
			{Name: "uptime-check:60s", IntervalSeconds: 60, Registered: true},
			{Name: "outbox-processor", IntervalSeconds: 10, Registered: true},
		}})
	}))
	defer srv.Close()

	tasks, err := NewPulseClient(srv.URL+"/", "secret-token").Reload(context.Background())
	require.NoError(t, err)
	require.Len(t, tasks, 2)
	assert.Equal(t, "uptime-check:60s", tasks[0].Name)
}

func TestErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "unauthorized",
			status: http.StatusUnauthorized,
			body:   `{"error":"missing token"}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) },
		},
		{
			name:   "forbidden",
			status: http.StatusForbidden,
			body:   `{"error":"admin role required"}`,
			check:  func(t *testing.T, err error) { assert.ErrorIs(t, err, ErrUnauthorized) },
		},
		{
			name:   "json error body",
			status: http.StatusInternalServerError,
			body:   `{"error":"reload tasks: services unavailable"}`,
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, http.StatusInternalServerError, apiErr.Status)
				assert.Equal(t, "reload tasks: services unavailable", apiErr.Message)
			},
		},
		{
			name:   "plain error body",
			status: http.StatusBadGateway,
			body:   "upstream gone\n",
			check: func(t *testing.T, err error) {
				var apiErr *APIError
				require.ErrorAs(t, err, &apiErr)
				assert.Equal(t, "upstream gone", apiErr.Message)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := NewPulseClient(srv.URL, "t").Tasks(context.Background())
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestHistory_SendsPaging(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "25", r.URL.Query().Get("size"))
		writeJSON(w, http.StatusOK, resp.HistoryResponse{Total: 30, Page: 2, Size: 25})
	}))
	defer srv.Close()

	res, err := NewPulseClient(srv.URL, "t").History(context.Background(), 2, 25)
	require.NoError(t, err)
	assert.Equal(t, int64(30), res.Total)
}

func TestWatchTicks_DeliversInOrderAndAdvances(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var sinces []string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		sinces = append(sinces, r.URL.Query().Get("since"))
		mu.Unlock()

		switch calls.Add(1) {
		case 1:
			writeJSON(w, http.StatusOK, resp.TicksResponse{
				Ticks:    []buffer.TickRecord{{Seq: 1, Task: "a"}, {Seq: 2, Task: "b"}},
				LastSeq:  2,
				Complete: true,
			})
		case 2:
			w.WriteHeader(http.StatusServiceUnavailable)
		default:
			writeJSON(w, http.StatusOK, resp.TicksResponse{
				Ticks:    []buffer.TickRecord{{Seq: 3, Task: "c"}},
				LastSeq:  3,
				Complete: true,
			})
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var got []string
	done := make(chan error, 1)
	go func() {
		done <- NewPulseClient(srv.URL, "t").WatchTicks(ctx, 0, 10*time.Millisecond, func(rec buffer.TickRecord) {
			got = append(got, rec.Task)
			if rec.Seq == 3 {
				cancel()
			}
		})
	}()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not stop")
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	mu.Lock()
	defer mu.Unlock()
	require.GreaterOrEqual(t, len(sinces), 3)
	assert.Equal(t, []string{"0", "2", "2"}, sinces[:3])
}

func TestWatchTicks_StopsWhenUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	err := NewPulseClient(srv.URL, "expired").WatchTicks(context.Background(), 0, time.Millisecond, func(buffer.TickRecord) {
		t.Fatal("no ticks expected")
	})
	assert.True(t, errors.Is(err, ErrUnauthorized))
}
