package service

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"testing"
	"time"

	"pulseflow/internal/model"
	"pulseflow/internal/probe"
	"pulseflow/internal/repository/memory"
	v1 "pulseflow/pkg/api/v1"
	"pulseflow/pkg/constraints"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCertHarness(t *testing.T) (*CertificateTask, *memory.Store, *httptest.Server) {
	t.Helper()
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)

	u, err := url.Parse(srv.URL)
	require.NoError(t, err)
	port, err := strconv.Atoi(u.Port())
	require.NoError(t, err)

	store := memory.NewStore()
	store.AddService(model.MonitoredService{ID: 1, Name: "checkout-api", URL: srv.URL, Active: true, TLSMonitoring: true})
	store.AddService(model.MonitoredService{ID: 2, Name: "plain", URL: srv.URL, Active: true})

	task := NewCertificateTask(store, probe.NewTLSInspector(port, 2*time.Second), nil, 7, 2)
	return task, store, srv
}

func TestCertificateTask_RecordsCertificate(t *testing.T) {
	task, store, srv := newCertHarness(t)
	notAfter := srv.Certificate().NotAfter
	task.now = func() time.Time { return notAfter.Add(-90 * 24 * time.Hour) }

	require.NoError(t, task.Run(context.Background()))
	require.NoError(t, task.Run(context.Background()))

	records := store.CertificateRecords()
	require.Len(t, records, 1)
	assert.Equal(t, int64(1), records[0].ServiceID)
	assert.Equal(t, "127.0.0.1", records[0].Domain)
	assert.Equal(t, 90, records[0].DaysRemaining)
	assert.True(t, notAfter.Equal(records[0].ExpiryDate))
	assert.NotEmpty(t, records[0].Fingerprint)
	assert.Empty(t, store.Events())
}

func TestCertificateTask_ReminderNearExpiry(t *testing.T) {
	task, store, srv := newCertHarness(t)
	notAfter := srv.Certificate().NotAfter
	task.now = func() time.Time { return notAfter.Add(-(3*24*time.Hour + time.Hour)) }

	require.NoError(t, task.Run(context.Background()))

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, constraints.EventCertExpiring, events[0].EventType)

	payloads, err := v1.DecodePayloads(events[0].Payload)
	require.NoError(t, err)
	days, ok := payloads[0].Int64("daysRemaining")
	require.True(t, ok)
	assert.Equal(t, int64(3), days)
	assert.Equal(t, "127.0.0.1", payloads[0].String("domain"))
	assert.Equal(t, false, payloads[0]["expired"])
}

func TestCertificateTask_ReminderThreshold(t *testing.T) {
	tests := []struct {
		name   string
		before time.Duration
		days   int
		remind bool
	}{
		{name: "exactly seven days", before: 7 * 24 * time.Hour, days: 7, remind: true},
		{name: "seven days and change", before: 7*24*time.Hour + time.Hour, days: 7, remind: true},
		{name: "eight days", before: 8 * 24 * time.Hour, days: 8, remind: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			task, store, srv := newCertHarness(t)
			notAfter := srv.Certificate().NotAfter
			task.now = func() time.Time { return notAfter.Add(-tt.before) }

			require.NoError(t, task.Run(context.Background()))

			records := store.CertificateRecords()
			require.Len(t, records, 1)
			assert.Equal(t, tt.days, records[0].DaysRemaining)
			if tt.remind {
				require.Len(t, store.Events(), 1)
				assert.Equal(t, constraints.EventCertExpiring, store.Events()[0].EventType)
			} else {
				assert.Empty(t, store.Events())
			}
		})
	}
}

func TestCertificateTask_ExpiredCertificateIsFlagged(t *testing.T) {
	task, store, srv := newCertHarness(t)
	notAfter := srv.Certificate().NotAfter
	task.now = func() time.Time { return notAfter.Add(36 * time.Hour) }

	require.NoError(t, task.Run(context.Background()))

	events := store.Events()
	require.Len(t, events, 1)
	payloads, err := v1.DecodePayloads(events[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, true, payloads[0]["expired"])
	days, _ := payloads[0].Int64("daysRemaining")
	assert.Equal(t, int64(-2), days)
}

func TestCertificateTask_UnreachableHostIsSkipped(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	store := memory.NewStore()
	store.AddService(model.MonitoredService{ID: 1, Name: "gone", URL: "https://127.0.0.1", Active: true, TLSMonitoring: true})
	task := NewCertificateTask(store, probe.NewTLSInspector(port, time.Second), nil, 7, 1)

	require.NoError(t, task.Run(context.Background()))
	assert.Empty(t, store.CertificateRecords())
	assert.Empty(t, store.Events())
}
