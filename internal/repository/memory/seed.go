package memory

import (
	"sort"

	"pulseflow/internal/model"
)

// The helpers below load reference data that the admin layer would normally own.

func (s *Store) AddService(svc model.MonitoredService) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	for i := range s.st.services {
		if s.st.services[i].ID == svc.ID {
			s.st.services[i] = svc
			return
		}
	}
	s.st.services = append(s.st.services, svc)
}

func (s *Store) AddUser(u model.User) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.users[u.ID] = u
}

func (s *Store) AddChannel(ch model.ContactChannel) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.channels = append(s.st.channels, ch)
}

func (s *Store) AddMember(groupID, userID int64, primary bool) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.members = append(s.st.members, model.ContactGroupMember{
		ContactGroupID: groupID,
		UserID:         userID,
		IsPrimary:      primary,
	})
}

func (s *Store) AttachGroup(serviceID, groupID int64) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.attached = append(s.st.attached, model.ServiceContactGroup{ServiceID: serviceID, ContactGroupID: groupID})
}

func (s *Store) PutTemplate(tpl model.NotificationTemplate) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.templates[templateKey{tpl.EventType, tpl.ChannelType}] = tpl
}

func (s *Store) PutSetting(key, value string) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.settings[key] = value
}

// AppendProbe writes a probe row directly, bypassing any transaction.
func (s *Store) AppendProbe(p model.ProbeResult) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.nextID++
	p.ID = s.st.nextID
	s.st.probes = append(s.st.probes, p)
}

func (s *Store) Events() []model.OutboxEvent {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]model.OutboxEvent, 0, len(s.st.events))
	for _, e := range s.st.events {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) ProbeResults(serviceID int64) []model.ProbeResult {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	var out []model.ProbeResult
	for _, p := range s.st.probes {
		if p.ServiceID == serviceID {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) CertificateRecords() []model.CertificateRecord {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	out := make([]model.CertificateRecord, 0, len(s.st.certs))
	for _, c := range s.st.certs {
		out = append(out, c)
	}
	return out
}

func (s *Store) HistoryEntries() []model.NotificationHistory {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	return append([]model.NotificationHistory(nil), s.st.history...)
}

func (s *Store) Execution(name string) (model.TaskExecution, bool) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	e, ok := s.st.executions[name]
	return e, ok
}
