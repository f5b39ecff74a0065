package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"pulseflow/internal/metrics"
	"pulseflow/internal/model"
	"pulseflow/internal/probe"
	"pulseflow/internal/repository"
	v1 "pulseflow/pkg/api/v1"
	"pulseflow/pkg/constraints"
	"pulseflow/pkg/logger"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const DefaultExpiryWarningDays = 7

// CertificateTask records the leaf certificate of every TLS-monitored service
// and enqueues a CERT_EXPIRING reminder when it is close to expiry.
type CertificateTask struct {
	store       repository.Store
	inspector   *probe.TLSInspector
	observer    metrics.ProbeObserver
	warnDays    int
	concurrency int
	now         func() time.Time
}

func NewCertificateTask(store repository.Store, inspector *probe.TLSInspector, observer metrics.ProbeObserver, warnDays, concurrency int) *CertificateTask {
	if warnDays <= 0 {
		warnDays = DefaultExpiryWarningDays
	}
	if concurrency <= 0 {
		concurrency = 4
	}
	if observer == nil {
		observer = metrics.Nop{}
	}
	return &CertificateTask{
		store:       store,
		inspector:   inspector,
		observer:    observer,
		warnDays:    warnDays,
		concurrency: concurrency,
		now:         time.Now,
	}
}

func (t *CertificateTask) Run(ctx context.Context) error {
	targets, err := t.store.Services().ListTLSTargets(ctx)
	if err != nil {
		return fmt.Errorf("list tls targets: %w", err)
	}

	var failed atomic.Int32
	p := pool.New().WithMaxGoroutines(t.concurrency)
	for _, svc := range targets {
		svc := svc
		p.Go(func() {
			if err := t.Check(ctx, svc); err != nil {
				failed.Add(1)
				logger.Error("failed to record certificate", zap.Int64("service_id", svc.ID), zap.Error(err))
			}
		})
	}
	p.Wait()

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d certificates could not be recorded", n, len(targets))
	}
	return nil
}

// Check inspects one service. Unreachable hosts are logged and skipped
// without touching the stored record.
func (t *CertificateTask) Check(ctx context.Context, svc model.MonitoredService) error {
	host, err := probe.HostFromURL(svc.URL)
	if err != nil {
		logger.Warn("skipping tls check for invalid url", zap.Int64("service_id", svc.ID), zap.Error(err))
		return nil
	}
	info, err := t.inspector.Inspect(ctx, host)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logger.Warn("tls handshake failed", zap.Int64("service_id", svc.ID), zap.String("host", host), zap.Error(err))
		return nil
	}

	now := t.now()
	days := probe.DaysRemaining(info.NotAfter, now)
	t.observer.SetCertificateDays(host, days)

	record := &model.CertificateRecord{
		ServiceID:          svc.ID,
		Domain:             host,
		Issuer:             info.Issuer,
		Subject:            info.Subject,
		SerialNumber:       info.SerialNumber,
		SignatureAlgorithm: info.SignatureAlgorithm,
		PublicKeyAlgorithm: info.PublicKeyAlgorithm,
		PublicKeyBits:      info.PublicKeyBits,
		SubjectAltNames:    strings.Join(info.SubjectAltNames, ","),
		Fingerprint:        info.Fingerprint,
		NotBefore:          info.NotBefore,
		ExpiryDate:         info.NotAfter,
		DaysRemaining:      days,
		LastChecked:        now,
	}

	return t.store.Transaction(ctx, func(tx repository.Store) error {
		if err := tx.Certificates().Upsert(ctx, record); err != nil {
			return fmt.Errorf("upsert certificate %s: %w", host, err)
		}
		if days > t.warnDays {
			return nil
		}

		payload := v1.CertificateExpiry{
			ServiceID:     svc.ID,
			ServiceName:   svc.Name,
			Domain:        host,
			Issuer:        info.Issuer,
			ExpiryDate:    info.NotAfter.UTC().Format(time.RFC3339),
			DaysRemaining: days,
			Expired:       days < 0,
		}
		serviceID := svc.ID
		event := &model.OutboxEvent{
			EventType: constraints.EventCertExpiring,
			ServiceID: &serviceID,
			Payload:   payload.ToJSON(),
			Status:    model.OutboxPending,
			TraceID:   uuid.New().String(),
		}
		if err := tx.Outbox().Create(ctx, event); err != nil {
			return fmt.Errorf("enqueue %s: %w", event.EventType, err)
		}
		logger.Info("certificate nearing expiry",
			zap.Int64("service_id", svc.ID),
			zap.String("domain", host),
			zap.Int("days_remaining", days),
		)
		return nil
	})
}
