package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/cryptox"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/slogx"
)

const DefaultRememberedDeviceTTL = 30 * 24 * time.Hour

// DeviceRegistry issues and checks remembered-device tokens, which let a
// device skip the MFA challenge of one configuration for a while.
type DeviceRegistry struct {
	Store store.Store
	TTL   time.Duration // default 30d
	Now   func() time.Time
}

func (r *DeviceRegistry) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

// Create mints a device token bound to configurationID. Only its
// fingerprint is stored.
func (r *DeviceRegistry) Create(ctx context.Context, configurationID string, client domain.ClientInfo) (domain.DeviceToken, error) {
	ttl := r.TTL
	if ttl <= 0 {
		ttl = DefaultRememberedDeviceTTL
	}

	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.DeviceToken{}, fmt.Errorf("failed to generate device token: %w", err)
	}

	now := r.now()
	d := domain.RememberedDevice{
		ID:              idx.NewAt(now).String(),
		ConfigurationID: configurationID,
		TokenHash:       cryptox.FingerprintToken(token),
		ExpiresAt:       now.Add(ttl),
		LastUsedAt:      &now,
		LastIP:          client.IP,
		LastUserAgent:   client.UserAgent,
		CreatedAt:       now,
	}
	if err := r.Store.RememberedDevices().CreateRememberedDevice(ctx, d); err != nil {
		return domain.DeviceToken{}, fmt.Errorf("failed to store remembered device: %w", err)
	}

	return domain.DeviceToken{Token: token, ExpiresAt: d.ExpiresAt}, nil
}

// Validate returns the id of the live device matching token, or "" when
// there is none. Expired devices of the configuration are pruned on the
// way out.
func (r *DeviceRegistry) Validate(ctx context.Context, configurationID, token string, client domain.ClientInfo) (string, error) {
	if token == "" {
		return "", nil
	}
	l := slogx.FromContext(ctx)
	now := r.now()

	devices, err := r.Store.RememberedDevices().ListRememberedDevices(ctx, configurationID)
	if err != nil {
		return "", fmt.Errorf("failed to list remembered devices: %w", err)
	}

	var matched string
	for i := range devices {
		d := &devices[i]
		if d.IsExpired(now) {
			continue
		}
		if cryptox.MatchFingerprint(token, d.TokenHash) {
			matched = d.ID
			break
		}
	}

	if matched != "" {
		if err := r.Store.RememberedDevices().TouchRememberedDevice(ctx, matched, now, client); err != nil {
			l.Error("failed to touch remembered device", slog.String("device_id", matched), slog.Any("error", err))
		}
	}

	if n, err := r.Store.RememberedDevices().DeleteExpiredRememberedDevices(ctx, configurationID, now); err != nil {
		l.Error("failed to prune remembered devices", slog.Any("error", err))
	} else if n > 0 {
		l.Debug("pruned remembered devices", slog.Int64("count", n))
	}

	return matched, nil
}
