package service

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/google/uuid"
)

// AuditSink records audit events. Recording never fails the caller.
type AuditSink interface {
	Record(ctx context.Context, e domain.AuditEvent)
}

// AuditConfig controls dispatcher buffering.
type AuditConfig struct {
	BufferSize int
	// DropIfFull drops events instead of blocking the request when the
	// buffer is full.
	DropIfFull bool
}

// AuditDispatcher writes audit events to the audit_events table and the
// log from a single background goroutine. Close drains what is buffered.
type AuditDispatcher struct {
	cfg    AuditConfig
	writer store.AuditEvents
	logger *slog.Logger

	ch        chan domain.AuditEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once
}

func NewAuditDispatcher(cfg AuditConfig, writer store.AuditEvents, logger *slog.Logger) *AuditDispatcher {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	d := &AuditDispatcher{
		cfg:    cfg,
		writer: writer,
		logger: logger,
		ch:     make(chan domain.AuditEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	d.wg.Add(1)
	go d.run()

	return d
}

func (d *AuditDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case e := <-d.ch:
			d.write(e)
		case <-d.done:
			for {
				select {
				case e := <-d.ch:
					d.write(e)
				default:
					return
				}
			}
		}
	}
}

func (d *AuditDispatcher) write(e domain.AuditEvent) {
	d.logger.Info("audit",
		slog.String("audit_id", e.ID),
		slog.String("action", string(e.Action)),
		slog.String("user_id", e.UserID),
		slog.String("ip", e.IP),
		slog.Any("metadata", e.Metadata),
	)
	if d.writer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.writer.CreateAuditEvent(ctx, e); err != nil {
		d.logger.Error("failed to store audit event",
			slog.String("audit_id", e.ID),
			slog.String("action", string(e.Action)),
			slog.Any("error", err),
		)
	}
}

// Record queues e. Missing ids and timestamps are filled in.
func (d *AuditDispatcher) Record(ctx context.Context, e domain.AuditEvent) {
	if d == nil || d.closed.Load() {
		return
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	if d.cfg.DropIfFull {
		select {
		case d.ch <- e:
		case <-d.done:
		default:
			d.dropped.Add(1)
		}
		return
	}

	select {
	case d.ch <- e:
	case <-ctx.Done():
	case <-d.done:
	}
}

// Close stops accepting events and waits for the buffer to drain.
func (d *AuditDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.closed.Store(true)
		close(d.done)
		d.wg.Wait()
	})
}

// Dropped reports how many events were discarded because the buffer was
// full.
func (d *AuditDispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}
