package recipient

import (
	"context"
	"errors"
	"fmt"

	"pulseflow/internal/model"
	"pulseflow/internal/repository"
	"pulseflow/pkg/constraints"
)

var ErrMissingSubject = errors.New("event does not name the service or user it concerns")

// Target identifies whom an event is about.
type Target struct {
	EventType string
	ServiceID *int64
	UserID    *int64
}

type strategy interface {
	resolve(ctx context.Context, repo repository.RecipientInterface, t Target) ([]model.Recipient, error)
}

type userScoped struct{}

func (userScoped) resolve(ctx context.Context, repo repository.RecipientInterface, t Target) ([]model.Recipient, error) {
	if t.UserID == nil {
		return nil, fmt.Errorf("%s: %w", t.EventType, ErrMissingSubject)
	}
	r, err := repo.PrimaryEmail(ctx, *t.UserID)
	if err != nil || r == nil {
		return nil, err
	}
	return []model.Recipient{*r}, nil
}

type serviceScoped struct{}

func (serviceScoped) resolve(ctx context.Context, repo repository.RecipientInterface, t Target) ([]model.Recipient, error) {
	if t.ServiceID == nil {
		return nil, fmt.Errorf("%s: %w", t.EventType, ErrMissingSubject)
	}
	contacts, err := repo.ServiceContacts(ctx, *t.ServiceID)
	if err != nil {
		return nil, err
	}
	return dedupe(contacts), nil
}

type Resolver struct {
	repo repository.RecipientInterface
}

func NewResolver(repo repository.RecipientInterface) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve returns the recipients for an event. Unknown event types resolve to
// an empty list.
func (r *Resolver) Resolve(ctx context.Context, t Target) ([]model.Recipient, error) {
	var s strategy
	switch constraints.ScopeOf(t.EventType) {
	case constraints.ScopeUser:
		s = userScoped{}
	case constraints.ScopeService:
		s = serviceScoped{}
	default:
		return nil, nil
	}
	return s.resolve(ctx, r.repo, t)
}

// dedupe keeps the first occurrence of each (channel, address) pair, which
// preserves primary-first ordering.
func dedupe(in []model.Recipient) []model.Recipient {
	seen := make(map[string]struct{}, len(in))
	out := make([]model.Recipient, 0, len(in))
	for _, r := range in {
		k := r.ChannelType + "\x00" + r.Address
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, r)
	}
	return out
}

type ChannelGroup struct {
	Channel    string
	Recipients []model.Recipient
}

// GroupByChannel splits recipients per channel, keeping first-seen channel order
// and the original order inside each group.
func GroupByChannel(in []model.Recipient) []ChannelGroup {
	idx := make(map[string]int)
	var groups []ChannelGroup
	for _, r := range in {
		i, ok := idx[r.ChannelType]
		if !ok {
			i = len(groups)
			idx[r.ChannelType] = i
			groups = append(groups, ChannelGroup{Channel: r.ChannelType})
		}
		groups[i].Recipients = append(groups[i].Recipients, r)
	}
	return groups
}
