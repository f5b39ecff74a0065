package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"pulseflow/internal/model"
	"pulseflow/internal/notify"
	"pulseflow/internal/repository/memory"
	"pulseflow/internal/templating"
	v1 "pulseflow/pkg/api/v1"
	"pulseflow/pkg/constraints"
	"pulseflow/pkg/logger"

	"github.com/stretchr/testify/require"
)

func init() {
	logger.InitLogger("test")
}

var errGateway = errors.New("gateway unavailable")

// fakeSender fails its first fail sends, or every send when fail is negative.
type fakeSender struct {
	channel string
	inline  bool
	fail    int

	mu    sync.Mutex
	calls int
	sent  []notify.Message
}

func (f *fakeSender) Channel() string      { return f.channel }
func (f *fakeSender) Validate() error      { return nil }
func (f *fakeSender) SupportsInline() bool { return f.inline }

func (f *fakeSender) Send(ctx context.Context, msg notify.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail < 0 || f.calls <= f.fail {
		return errGateway
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) Sent() []notify.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]notify.Message(nil), f.sent...)
}

type staticPolicy struct {
	cooldown time.Duration
	retries  int
	delay    time.Duration
}

func (p staticPolicy) Cooldown() time.Duration   { return p.cooldown }
func (p staticPolicy) RetryCount() int           { return p.retries }
func (p staticPolicy) RetryDelay() time.Duration { return p.delay }

// recordingDispatcher captures units instead of delivering them.
type recordingDispatcher struct {
	mu    sync.Mutex
	units []Unit
}

func (r *recordingDispatcher) Dispatch(ctx context.Context, u Unit) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.units = append(r.units, u)
}

func (r *recordingDispatcher) Units() []Unit {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Unit(nil), r.units...)
}

// seedContacts wires service 1 to a group with a primary email contact and a
// secondary telegram contact.
func seedContacts(s *memory.Store) {
	s.AddService(model.MonitoredService{ID: 1, Name: "checkout-api", URL: "https://checkout.example.com", Active: true})
	s.AddUser(model.User{ID: 10, Username: "alice", Email: "alice@example.com", Active: true})
	s.AddUser(model.User{ID: 11, Username: "bob", Email: "bob@example.com", Active: true})
	s.AddChannel(model.ContactChannel{ID: 100, UserID: 10, ChannelType: constraints.ChannelEmail, Address: "alice@example.com", Enabled: true})
	s.AddChannel(model.ContactChannel{ID: 101, UserID: 11, ChannelType: constraints.ChannelTelegram, Address: "424242", Enabled: true})
	s.AddMember(5, 10, true)
	s.AddMember(5, 11, false)
	s.AttachGroup(1, 5)

	s.PutTemplate(model.NotificationTemplate{
		EventType:       constraints.EventServiceDown,
		ChannelType:     constraints.ChannelTelegram,
		SubjectTemplate: "DOWN {{serviceName}}",
		BodyTemplate:    "{{serviceName}} is down: {{errorMessage}}",
	})
	s.PutTemplate(model.NotificationTemplate{
		EventType:       constraints.EventServiceRecovered,
		ChannelType:     constraints.ChannelTelegram,
		SubjectTemplate: "UP {{serviceName}}",
		BodyTemplate:    "{{serviceName}} back after {{downtime}} ({{downtimeSeconds}}s)",
	})
}

type dispatchHarness struct {
	store    *memory.Store
	email    *fakeSender
	telegram *fakeSender
	now      time.Time
	policy   staticPolicy
	d        *Dispatcher
}

func newDispatchHarness(t *testing.T) *dispatchHarness {
	t.Helper()
	h := &dispatchHarness{
		store:    memory.NewStore(),
		email:    &fakeSender{channel: constraints.ChannelEmail, inline: true},
		telegram: &fakeSender{channel: constraints.ChannelTelegram},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		policy:   staticPolicy{cooldown: 10 * time.Minute, retries: 3},
	}
	seedContacts(h.store)

	reg := notify.NewRegistry()
	require.NoError(t, reg.AddSender(constraints.ChannelEmail, h.email))
	require.NoError(t, reg.AddSender(constraints.ChannelTelegram, h.telegram))

	loader := templating.NewLoader(h.store.Templates(), "", nil)
	h.d = NewDispatcher(h.store, loader, reg, &h.policy,
		WithLogo("/assets/logo.png"),
		WithDispatchClock(func() time.Time { return h.now }),
	)
	return h
}

func downPayload(t *testing.T) v1.Payload {
	t.Helper()
	raw := v1.ServiceStatusChange{
		ServiceID:    1,
		ServiceName:  "checkout-api",
		ServiceURL:   "https://checkout.example.com",
		OldStatus:    model.ProbeUp,
		NewStatus:    model.ProbeDown,
		ErrorMessage: "connection refused",
		CheckedAt:    "2026-03-01T12:00:00Z",
	}.ToJSON()
	list, err := v1.DecodePayloads(raw)
	require.NoError(t, err)
	require.Len(t, list, 1)
	return list[0]
}

func ptrTime(t time.Time) *time.Time { return &t }

func ptrInt64(v int64) *int64 { return &v }
