package service

import (
	"context"
	"fmt"
	"time"

	"pulseflow/internal/metrics"
	"pulseflow/internal/model"
	"pulseflow/internal/notify"
	"pulseflow/internal/recipient"
	"pulseflow/internal/repository"
	"pulseflow/internal/templating"
	v1 "pulseflow/pkg/api/v1"
	"pulseflow/pkg/constraints"
	"pulseflow/pkg/logger"

	"go.uber.org/zap"
)

const LogoContentID = "logo"

// DeliveryPolicy supplies the tunables read on every dispatch.
type DeliveryPolicy interface {
	Cooldown() time.Duration
	RetryCount() int
	RetryDelay() time.Duration
}

// Unit is one payload of a claimed outbox event.
type Unit struct {
	EventID        int64
	EventType      string
	ServiceID      *int64
	FirstFailureAt *time.Time
	TraceID        string
	Payload        v1.Payload
}

type Dispatcher struct {
	history   repository.HistoryInterface
	resolver  *recipient.Resolver
	templates *templating.Loader
	senders   *notify.Registry
	policy    DeliveryPolicy
	observer  metrics.OutboxObserver
	logoPath  string
	now       func() time.Time
}

type DispatcherOption func(*Dispatcher)

func WithDispatchObserver(o metrics.OutboxObserver) DispatcherOption {
	return func(d *Dispatcher) { d.observer = o }
}

// WithLogo attaches the file at path inline to messages on channels that support it.
func WithLogo(path string) DispatcherOption {
	return func(d *Dispatcher) { d.logoPath = path }
}

func WithDispatchClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(store repository.Store, templates *templating.Loader, senders *notify.Registry, policy DeliveryPolicy, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		history:   store.History(),
		resolver:  recipient.NewResolver(store.Recipients()),
		templates: templates,
		senders:   senders,
		policy:    policy,
		observer:  metrics.Nop{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch delivers one unit to every resolved recipient. Failures are logged
// and recorded in the notification history; nothing is returned to the caller.
func (d *Dispatcher) Dispatch(ctx context.Context, u Unit) {
	log := logger.L().With(
		zap.Int64("event_id", u.EventID),
		zap.String("event_type", u.EventType),
		zap.String("trace_id", u.TraceID),
	)

	now := d.now()
	if constraints.IsDownEvent(u.EventType) && u.FirstFailureAt != nil {
		if until := u.FirstFailureAt.Add(d.policy.Cooldown()); now.Before(until) {
			d.observer.RecordSuppressed(u.EventType)
			log.Debug("alert suppressed by cooldown", zap.Time("first_failure_at", *u.FirstFailureAt), zap.Time("until", until))
			return
		}
	}

	data := u.Payload.Clone()
	if constraints.IsRecoveredEvent(u.EventType) && u.FirstFailureAt != nil {
		// Downtime ends at the check that saw the recovery.
		end := now
		if checked, err := time.Parse(time.RFC3339, data.String("checkedAt")); err == nil {
			end = checked
		}
		downtime := end.Sub(*u.FirstFailureAt)
		if downtime < 0 {
			downtime = 0
		}
		data["downtime"] = FormatDowntime(downtime)
		data["downtimeSeconds"] = int64(downtime / time.Second)
	}

	target := recipient.Target{EventType: u.EventType, ServiceID: u.ServiceID}
	if target.ServiceID == nil {
		if id, ok := data.Int64("serviceId"); ok {
			target.ServiceID = &id
		}
	}
	if id, ok := data.Int64("userId"); ok {
		target.UserID = &id
	}

	recipients, err := d.resolver.Resolve(ctx, target)
	if err != nil {
		log.Warn("failed to resolve recipients", zap.Error(err))
		return
	}
	if len(recipients) == 0 {
		log.Debug("no recipients for event")
		return
	}

	for _, group := range recipient.GroupByChannel(recipients) {
		d.dispatchGroup(ctx, log, u, data, group)
	}
}

func (d *Dispatcher) dispatchGroup(ctx context.Context, log *zap.Logger, u Unit, data v1.Payload, group recipient.ChannelGroup) {
	log = log.With(zap.String("channel", group.Channel))

	sender, err := d.senders.Get(group.Channel)
	if err != nil {
		log.Warn("skipping channel without sender", zap.Error(err))
		return
	}
	tpl, err := d.templates.Resolve(ctx, u.EventType, group.Channel)
	if err != nil {
		log.Warn("skipping channel without template", zap.Error(err))
		return
	}
	subject, err := templating.Render(tpl.Subject, data)
	if err != nil {
		log.Warn("failed to render subject", zap.Error(err))
		return
	}
	body, err := templating.Render(tpl.Body, data)
	if err != nil {
		log.Warn("failed to render body", zap.Error(err))
		return
	}

	var inline []notify.Attachment
	if d.logoPath != "" && notify.SupportsInline(sender) {
		inline = []notify.Attachment{{Path: d.logoPath, ContentID: LogoContentID}}
	}

	for _, r := range group.Recipients {
		msg := notify.Message{To: r.Address, Subject: subject, Body: body, Inline: inline}
		d.deliver(ctx, log, u, r, sender, msg)
	}
}

// deliver makes up to RetryCount attempts and then records exactly one history row.
func (d *Dispatcher) deliver(ctx context.Context, log *zap.Logger, u Unit, r model.Recipient, sender notify.Sender, msg notify.Message) {
	attempts := d.policy.RetryCount()
	if attempts < 1 {
		attempts = 1
	}
	delay := d.policy.RetryDelay()

	var lastErr error
	made := 0
	for made < attempts {
		made++
		lastErr = sender.Send(ctx, msg)
		if lastErr == nil {
			break
		}
		log.Debug("delivery attempt failed",
			zap.String("recipient", r.Address),
			zap.Int("attempt", made),
			zap.Error(lastErr),
		)
		if made < attempts {
			if err := waitRetry(ctx, delay); err != nil {
				lastErr = fmt.Errorf("%w (retry aborted: %v)", lastErr, err)
				break
			}
		}
	}

	entry := &model.NotificationHistory{
		EventID:        u.EventID,
		ServiceID:      u.ServiceID,
		ContactGroupID: r.ContactGroupID,
		UserID:         r.IdentityID,
		ChannelID:      r.ChannelID,
		ChannelType:    sender.Channel(),
		Recipient:      r.Address,
		Subject:        msg.Subject,
		Message:        msg.Body,
		Status:         model.DeliverySent,
		Attempts:       made,
		SentAt:         d.now(),
	}
	if lastErr != nil {
		entry.Status = model.DeliveryFailed
		entry.ErrorMessage = lastErr.Error()
		log.Warn("delivery failed",
			zap.String("recipient", r.Address),
			zap.Int("attempts", made),
			zap.Error(lastErr),
		)
	}
	d.observer.RecordDelivery(sender.Channel(), entry.Status)

	// The history row must survive a cancellation that interrupted the retries.
	hctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.history.Append(hctx, entry); err != nil {
		log.Error("failed to record notification history", zap.String("recipient", r.Address), zap.Error(err))
	}
}

func waitRetry(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// FormatDowntime renders d as "1h 4m 10s", dropping leading zero units.
func FormatDowntime(d time.Duration) string {
	d = d.Round(time.Second)
	h := int64(d / time.Hour)
	m := int64(d%time.Hour) / int64(time.Minute)
	s := int64(d%time.Minute) / int64(time.Second)
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}
