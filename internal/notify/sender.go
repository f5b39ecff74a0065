package notify

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

var ErrUnknownChannel = errors.New("no sender registered for channel")

// Attachment is inline content referenced from the body by ContentID.
type Attachment struct {
	Path      string
	ContentID string
}

type Message struct {
	To      string
	Subject string
	Body    string
	Inline  []Attachment
}

// Sender delivers a rendered message over one channel type.
type Sender interface {
	Channel() string
	Send(ctx context.Context, msg Message) error
	Validate() error
}

// InlineCapable is implemented by senders that can carry inline attachments.
type InlineCapable interface {
	SupportsInline() bool
}

type Registry struct {
	mu      sync.RWMutex
	senders map[string]Sender
}

func NewRegistry() *Registry {
	return &Registry{senders: make(map[string]Sender)}
}

// AddSender registers sender for channelType, replacing any previous one.
func (r *Registry) AddSender(channelType string, sender Sender) error {
	if sender == nil {
		return fmt.Errorf("sender for %s is nil", channelType)
	}
	if err := sender.Validate(); err != nil {
		return fmt.Errorf("invalid %s sender: %w", channelType, err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.senders[channelType] = sender
	return nil
}

func (r *Registry) Get(channelType string) (Sender, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.senders[channelType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, channelType)
	}
	return s, nil
}

func (r *Registry) Channels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.senders))
	for k := range r.senders {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// SupportsInline reports whether a sender can embed inline attachments.
func SupportsInline(s Sender) bool {
	ic, ok := s.(InlineCapable)
	return ok && ic.SupportsInline()
}
