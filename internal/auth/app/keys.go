package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/jwtx"
)

// InitAuthKeys creates the KeyManager for the configured storage mode.
//
// Storage modes:
//   - "ephemeral": keys are generated on startup and held in memory only.
//     Access tokens issued before a restart stop verifying. Refresh tokens
//     are opaque and keep working.
//   - "persistent": keys are sealed with sealer and stored in the database so
//     every instance signs and verifies with the same set.
func InitAuthKeys(ctx context.Context, cfg Config, db store.Store, sealer jwtx.Sealer, logger *slog.Logger) (*jwtx.KeyManager, error) {
	opts := jwtx.KeyManagerOptions{
		Algorithm: cfg.Algorithm,
		Issuer:    cfg.Issuer,
		Audience:  cfg.Audience,
		NumKeys:   cfg.NumKeys,
	}

	switch cfg.KeyStorageMode {
	case "persistent":
		logger.Info("initializing persistent key manager",
			"algorithm", cfg.Algorithm,
			"num_keys", cfg.NumKeys,
			"grace_period", cfg.KeyGracePeriod,
		)

		km, err := jwtx.NewPersistentKeyManager(ctx, jwtx.PersistentKeyManagerOptions{
			KeyManagerOptions: opts,
			Store:             store.NewKeyStoreAdapter(db),
			Sealer:            sealer,
			GracePeriod:       cfg.KeyGracePeriod,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize persistent key manager: %w", err)
		}

		logger.Info("persistent signing keys loaded",
			"algorithm", km.Algorithm(),
			"num_keys", km.NumSigners(),
			"issuer", cfg.Issuer,
		)
		return km, nil

	default:
		km, err := jwtx.NewEphemeralKeyManager(opts)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ephemeral key manager: %w", err)
		}

		logger.Info("generated ephemeral signing keys",
			"algorithm", km.Algorithm(),
			"num_keys", km.NumSigners(),
			"issuer", cfg.Issuer,
		)
		logger.Warn("access tokens issued before this start no longer verify")
		return km, nil
	}
}
