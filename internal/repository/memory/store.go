// Package memory is a process-local Store used for development runs and tests.
// Claimed outbox rows are hidden from other transactions until the claiming
// transaction ends, mirroring SELECT ... FOR UPDATE SKIP LOCKED.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"pulseflow/internal/model"
	"pulseflow/internal/repository"
	"pulseflow/pkg/constraints"
)

var ErrUnavailable = errors.New("memory store unavailable")

type certKey struct {
	serviceID int64
	domain    string
}

type templateKey struct {
	eventType   string
	channelType string
}

type state struct {
	mu  sync.Mutex
	now func() time.Time

	nextID     int64
	events     map[int64]*model.OutboxEvent
	claimed    map[int64]struct{}
	probes     []model.ProbeResult
	certs      map[certKey]model.CertificateRecord
	templates  map[templateKey]model.NotificationTemplate
	history    []model.NotificationHistory
	executions map[string]model.TaskExecution
	services   []model.MonitoredService
	users      map[int64]model.User
	members    []model.ContactGroupMember
	channels   []model.ContactChannel
	attached   []model.ServiceContactGroup
	settings   map[string]string
	down       bool
}

type txn struct {
	claims []int64
	ops    []func(st *state)
}

type Store struct {
	st *state
	tx *txn
}

var _ repository.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{st: &state{
		now:        time.Now,
		events:     make(map[int64]*model.OutboxEvent),
		claimed:    make(map[int64]struct{}),
		certs:      make(map[certKey]model.CertificateRecord),
		templates:  make(map[templateKey]model.NotificationTemplate),
		executions: make(map[string]model.TaskExecution),
		users:      make(map[int64]model.User),
		settings:   make(map[string]string),
	}}
}

// SetClock overrides the timestamp source for created/updated columns.
func (s *Store) SetClock(now func() time.Time) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.now = now
}

// SetUnavailable makes every subsequent operation fail with ErrUnavailable.
func (s *Store) SetUnavailable(down bool) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.down = down
}

func (s *Store) Outbox() repository.OutboxInterface            { return outboxRepo{s} }
func (s *Store) Probes() repository.ProbeInterface             { return probeRepo{s} }
func (s *Store) Certificates() repository.CertificateInterface { return certRepo{s} }
func (s *Store) Templates() repository.TemplateInterface       { return templateRepo{s} }
func (s *Store) Recipients() repository.RecipientInterface     { return recipientRepo{s} }
func (s *Store) History() repository.HistoryInterface          { return historyRepo{s} }
func (s *Store) Executions() repository.ExecutionInterface     { return executionRepo{s} }
func (s *Store) Services() repository.ServiceInterface         { return serviceRepo{s} }
func (s *Store) Settings() repository.SettingInterface         { return settingRepo{s} }

func (s *Store) Transaction(ctx context.Context, fn func(tx repository.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	if err := s.check(); err != nil {
		return err
	}

	tx := &txn{}
	err := fn(&Store{st: s.st, tx: tx})
	if err == nil {
		err = ctx.Err()
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if err == nil && s.st.down {
		err = ErrUnavailable
	}
	if err == nil {
		for _, op := range tx.ops {
			op(s.st)
		}
	}
	for _, id := range tx.claims {
		delete(s.st.claimed, id)
	}
	return err
}

func (s *Store) Ping(ctx context.Context) error {
	return s.check()
}

func (s *Store) check() error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.st.down {
		return ErrUnavailable
	}
	return nil
}

// read runs fn under the state lock.
func (s *Store) read(fn func(st *state)) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	if s.st.down {
		return ErrUnavailable
	}
	fn(s.st)
	return nil
}

// write applies op now, or stages it until commit inside a transaction.
func (s *Store) write(op func(st *state)) error {
	if s.tx != nil {
		if err := s.check(); err != nil {
			return err
		}
		s.tx.ops = append(s.tx.ops, op)
		return nil
	}
	return s.read(op)
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) Create(ctx context.Context, event *model.OutboxEvent) error {
	if event.Status == "" {
		event.Status = model.OutboxPending
	}
	return r.s.write(func(st *state) {
		st.nextID++
		event.ID = st.nextID
		now := st.now()
		if event.CreatedAt.IsZero() {
			event.CreatedAt = now
		}
		event.UpdatedAt = now
		cp := *event
		st.events[cp.ID] = &cp
	})
}

func (r outboxRepo) ClaimPending(ctx context.Context, limit int) ([]model.OutboxEvent, error) {
	var out []model.OutboxEvent
	err := r.s.read(func(st *state) {
		ids := make([]int64, 0, len(st.events))
		for id, e := range st.events {
			if e.Status != model.OutboxPending {
				continue
			}
			if _, held := st.claimed[id]; held {
				continue
			}
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		if limit > 0 && len(ids) > limit {
			ids = ids[:limit]
		}
		for _, id := range ids {
			out = append(out, *st.events[id])
			if r.s.tx != nil {
				st.claimed[id] = struct{}{}
				r.s.tx.claims = append(r.s.tx.claims, id)
			}
		}
	})
	return out, err
}

func (r outboxRepo) MarkEvent(ctx context.Context, id int64, status string, errAppend string) error {
	return r.s.write(func(st *state) {
		e, ok := st.events[id]
		if !ok || e.Status != model.OutboxPending {
			return
		}
		e.Status = status
		if errAppend != "" {
			e.Payload = repository.AppendProcessingError(e.Payload, errAppend)
		}
		e.UpdatedAt = st.now()
	})
}

func (r outboxRepo) LatestForService(ctx context.Context, serviceID int64, eventType string) (*model.OutboxEvent, error) {
	var latest *model.OutboxEvent
	err := r.s.read(func(st *state) {
		for _, e := range st.events {
			if e.ServiceID == nil || *e.ServiceID != serviceID || e.EventType != eventType {
				continue
			}
			if latest == nil || e.ID > latest.ID {
				cp := *e
				latest = &cp
			}
		}
	})
	return latest, err
}

type probeRepo struct{ s *Store }

func (r probeRepo) Append(ctx context.Context, result *model.ProbeResult) error {
	return r.s.write(func(st *state) {
		st.nextID++
		result.ID = st.nextID
		st.probes = append(st.probes, *result)
	})
}

func (r probeRepo) Latest(ctx context.Context, serviceID int64) (*model.ProbeResult, error) {
	var latest *model.ProbeResult
	err := r.s.read(func(st *state) {
		for i := range st.probes {
			p := st.probes[i]
			if p.ServiceID != serviceID {
				continue
			}
			if latest == nil || !p.CheckedAt.Before(latest.CheckedAt) {
				latest = &p
			}
		}
	})
	return latest, err
}

type certRepo struct{ s *Store }

func (r certRepo) Upsert(ctx context.Context, record *model.CertificateRecord) error {
	return r.s.write(func(st *state) {
		key := certKey{record.ServiceID, record.Domain}
		if prev, ok := st.certs[key]; ok {
			record.ID = prev.ID
		} else {
			st.nextID++
			record.ID = st.nextID
		}
		st.certs[key] = *record
	})
}

type templateRepo struct{ s *Store }

func (r templateRepo) Find(ctx context.Context, eventType, channelType string) (*model.NotificationTemplate, error) {
	var tpl *model.NotificationTemplate
	err := r.s.read(func(st *state) {
		if t, ok := st.templates[templateKey{eventType, channelType}]; ok {
			tpl = &t
		}
	})
	return tpl, err
}

type recipientRepo struct{ s *Store }

func (r recipientRepo) PrimaryEmail(ctx context.Context, userID int64) (*model.Recipient, error) {
	var rcpt *model.Recipient
	err := r.s.read(func(st *state) {
		u, ok := st.users[userID]
		if !ok || !u.Active || u.Email == "" {
			return
		}
		rcpt = &model.Recipient{
			IdentityID:  u.ID,
			ChannelType: constraints.ChannelEmail,
			Address:     u.Email,
			Primary:     true,
		}
	})
	return rcpt, err
}

func (r recipientRepo) ServiceContacts(ctx context.Context, serviceID int64) ([]model.Recipient, error) {
	var out []model.Recipient
	err := r.s.read(func(st *state) {
		for _, a := range st.attached {
			if a.ServiceID != serviceID {
				continue
			}
			for _, m := range st.members {
				if m.ContactGroupID != a.ContactGroupID {
					continue
				}
				u, ok := st.users[m.UserID]
				if !ok || !u.Active {
					continue
				}
				for _, ch := range st.channels {
					if ch.UserID != u.ID || !ch.Enabled {
						continue
					}
					groupID := a.ContactGroupID
					out = append(out, model.Recipient{
						IdentityID:     u.ID,
						ContactGroupID: &groupID,
						ChannelID:      ch.ID,
						ChannelType:    ch.ChannelType,
						Address:        ch.Address,
						Primary:        m.IsPrimary,
					})
				}
			}
		}
		sort.SliceStable(out, func(i, j int) bool {
			a, b := out[i], out[j]
			if a.Primary != b.Primary {
				return a.Primary
			}
			if *a.ContactGroupID != *b.ContactGroupID {
				return *a.ContactGroupID < *b.ContactGroupID
			}
			if a.IdentityID != b.IdentityID {
				return a.IdentityID < b.IdentityID
			}
			return a.ChannelID < b.ChannelID
		})
	})
	return out, err
}

type historyRepo struct{ s *Store }

func (r historyRepo) Append(ctx context.Context, entry *model.NotificationHistory) error {
	return r.s.write(func(st *state) {
		st.nextID++
		entry.ID = st.nextID
		st.history = append(st.history, *entry)
	})
}

func (r historyRepo) List(ctx context.Context, offset, limit int) ([]model.NotificationHistory, int64, error) {
	var out []model.NotificationHistory
	var total int64
	err := r.s.read(func(st *state) {
		total = int64(len(st.history))
		for i := len(st.history) - 1 - offset; i >= 0 && len(out) < limit; i-- {
			out = append(out, st.history[i])
		}
	})
	return out, total, err
}

type executionRepo struct{ s *Store }

func (r executionRepo) Upsert(ctx context.Context, exec *model.TaskExecution) error {
	return r.s.write(func(st *state) {
		cp := *exec
		cp.UpdatedAt = st.now()
		st.executions[exec.TaskName] = cp
	})
}

func (r executionRepo) List(ctx context.Context) ([]model.TaskExecution, error) {
	var out []model.TaskExecution
	err := r.s.read(func(st *state) {
		for _, e := range st.executions {
			out = append(out, e)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].TaskName < out[j].TaskName })
	return out, err
}

type serviceRepo struct{ s *Store }

func (r serviceRepo) ListActive(ctx context.Context) ([]model.MonitoredService, error) {
	return r.filter(func(svc model.MonitoredService) bool { return svc.Active })
}

func (r serviceRepo) ListTLSTargets(ctx context.Context) ([]model.MonitoredService, error) {
	return r.filter(func(svc model.MonitoredService) bool { return svc.Active && svc.TLSMonitoring })
}

func (r serviceRepo) filter(keep func(model.MonitoredService) bool) ([]model.MonitoredService, error) {
	var out []model.MonitoredService
	err := r.s.read(func(st *state) {
		for _, svc := range st.services {
			if keep(svc) {
				out = append(out, svc)
			}
		}
	})
	return out, err
}

type settingRepo struct{ s *Store }

func (r settingRepo) LoadAll(ctx context.Context) (map[string]string, error) {
	out := make(map[string]string)
	err := r.s.read(func(st *state) {
		for k, v := range st.settings {
			out[k] = v
		}
	})
	return out, err
}
