package service

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestAuditDispatcher_DrainsOnClose(t *testing.T) {
	t.Parallel()
	env := newTestEnv(t)
	ctx := context.Background()

	d := NewAuditDispatcher(AuditConfig{BufferSize: 16}, env.store.AuditEvents(), slog.New(slog.DiscardHandler))

	base := time.Now().UTC().Truncate(time.Millisecond)
	actions := []domain.AuditAction{domain.AuditSignup, domain.AuditLogin, domain.AuditLogout}
	for i, a := range actions {
		d.Record(ctx, domain.AuditEvent{
			Action:    a,
			UserID:    "user-1",
			IP:        "203.0.113.9",
			Metadata:  map[string]string{"n": string(rune('a' + i))},
			CreatedAt: base.Add(time.Duration(i) * time.Second),
		})
	}
	d.Close()

	// closed dispatchers ignore new events
	d.Record(ctx, domain.AuditEvent{Action: domain.AuditLogin, UserID: "user-1"})

	events, err := env.store.AuditEvents().ListUserAuditEvents(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, events, 3)
	require.Equal(t, domain.AuditLogout, events[0].Action)
	require.Equal(t, domain.AuditSignup, events[2].Action)
	require.Equal(t, "a", events[2].Metadata["n"])
	for _, e := range events {
		require.NotEmpty(t, e.ID)
		require.Equal(t, "203.0.113.9", e.IP)
	}
	require.Zero(t, d.Dropped())
}

type blockingWriter struct {
	started chan struct{}
	release chan struct{}
}

func (w *blockingWriter) CreateAuditEvent(context.Context, domain.AuditEvent) error {
	w.started <- struct{}{}
	<-w.release
	return nil
}

func (w *blockingWriter) ListUserAuditEvents(context.Context, string, int) ([]domain.AuditEvent, error) {
	return nil, nil
}

func TestAuditDispatcher_DropIfFull(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	w := &blockingWriter{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewAuditDispatcher(AuditConfig{BufferSize: 1, DropIfFull: true}, w, slog.New(slog.DiscardHandler))

	d.Record(ctx, domain.AuditEvent{Action: domain.AuditLogin})
	<-w.started // the writer holds the first event

	d.Record(ctx, domain.AuditEvent{Action: domain.AuditLogin}) // buffered
	d.Record(ctx, domain.AuditEvent{Action: domain.AuditLogin}) // dropped
	d.Record(ctx, domain.AuditEvent{Action: domain.AuditLogin}) // dropped
	require.EqualValues(t, 2, d.Dropped())

	close(w.release)
	d.Close()
}

func TestAuditDispatcher_NilIsSafe(t *testing.T) {
	var d *AuditDispatcher
	d.Record(context.Background(), domain.AuditEvent{Action: domain.AuditLogin})
	d.Close()
	require.Zero(t, d.Dropped())
}
