package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/store"
)

// KeyRefresher reloads signing keys shared with other instances.
// *jwtx.KeyManager satisfies it in persistent mode.
type KeyRefresher interface {
	Refresh(ctx context.Context) (int, error)
}

// HousekeepingService periodically removes rows that can no longer affect
// any decision: expired refresh tokens, one-time tokens, challenges,
// remembered devices and signing keys. Every read path already checks
// expiry, so this only bounds table growth.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration

	// Keys, when set, is refreshed on every sweep so keys minted by other
	// instances become verifiable here.
	Keys KeyRefresher

	// Retention keeps expired refresh and one-time tokens around this long
	// for investigation.
	Retention time.Duration

	Now func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a new housekeeping service with the given interval.
// If interval is 0 or negative, defaults to 1 hour.
func NewHousekeepingService(store store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = 1 * time.Hour
	}

	return &HousekeepingService{
		Store:    store,
		Logger:   logger,
		Interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the sweep in the background until Stop is called.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until an in-progress sweep has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.Sweep(context.Background())

	for {
		select {
		case <-ticker.C:
			s.Sweep(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// Sweep runs one cleanup pass and returns the number of rows removed.
// Each step is independent; a failure is logged and the rest still run.
func (s *HousekeepingService) Sweep(ctx context.Context) int64 {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}
	cutoff := now.Add(-s.Retention)

	steps := []struct {
		name string
		fn   func() (int64, error)
	}{
		{"refresh_tokens", func() (int64, error) {
			return s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, cutoff)
		}},
		{"one_time_tokens", func() (int64, error) {
			return s.Store.OneTimeTokens().DeleteExpiredOneTimeTokens(ctx, cutoff)
		}},
		{"mfa_challenges", func() (int64, error) {
			return s.Store.MFAChallenges().DeleteExpiredMFAChallenges(ctx, now)
		}},
		{"remembered_devices", func() (int64, error) {
			return s.Store.RememberedDevices().DeleteExpiredRememberedDevices(ctx, "", now)
		}},
		{"signing_keys", func() (int64, error) {
			return s.Store.SigningKeys().DeleteExpiredSigningKeys(ctx, now)
		}},
	}

	var total int64
	for _, step := range steps {
		n, err := step.fn()
		if err != nil {
			s.Logger.Error("housekeeping step failed", "table", step.name, "error", err)
			continue
		}
		if n > 0 {
			s.Logger.Debug("housekeeping removed rows", "table", step.name, "count", n)
		}
		total += n
	}

	if s.Keys != nil {
		if n, err := s.Keys.Refresh(ctx); err != nil {
			s.Logger.Error("failed to refresh signing keys", "error", err)
		} else {
			s.Logger.Debug("signing keys refreshed", "keys", n)
		}
	}

	s.Logger.Info("housekeeping sweep completed", "removed", total)
	return total
}
