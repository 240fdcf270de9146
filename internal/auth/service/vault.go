package service

import (
	"context"
	"fmt"
	"time"

	"github.com/aussiebroadwan/purse/internal/auth/domain"
	"github.com/aussiebroadwan/purse/internal/auth/store"
	"github.com/aussiebroadwan/purse/pkg/idx"
	"github.com/aussiebroadwan/purse/pkg/totpx"
)

// PasswordHasher is the slow hash used for passwords and backup codes.
// *cryptox.Hasher satisfies it.
type PasswordHasher interface {
	Hash(ctx context.Context, password string) (string, error)
	Verify(ctx context.Context, encoded, password string) (bool, error)
	NeedsRehash(encoded string) bool
}

// BackupCodeVault manages the single-use backup codes of an MFA
// configuration. Codes are low entropy, so they get the password hash
// rather than a fingerprint.
type BackupCodeVault struct {
	Store  store.Store
	Hasher PasswordHasher

	// Count is the size of a generated set (default 8).
	Count int

	Now func() time.Time
}

func (v *BackupCodeVault) now() time.Time {
	if v.Now != nil {
		return v.Now().UTC()
	}
	return time.Now().UTC()
}

// Generate returns a fresh set of plaintext codes and their hashes, index
// aligned. Nothing is stored.
func (v *BackupCodeVault) Generate(ctx context.Context) ([]string, []string, error) {
	count := v.Count
	if count <= 0 {
		count = totpx.DefaultBackupCodeCount
	}

	codes, err := totpx.GenerateBackupCodes(count)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to generate backup codes: %w", err)
	}

	hashes := make([]string, len(codes))
	for i, code := range codes {
		h, err := v.Hasher.Hash(ctx, totpx.NormalizeBackupCode(code))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to hash backup code: %w", err)
		}
		hashes[i] = h
	}
	return codes, hashes, nil
}

// Replace swaps the whole code set of a configuration. Pass a Tx so the
// delete and the inserts land together.
func (v *BackupCodeVault) Replace(ctx context.Context, st store.Store, configurationID string, hashes []string) error {
	if err := st.BackupCodes().DeleteBackupCodes(ctx, configurationID); err != nil {
		return fmt.Errorf("failed to delete backup codes: %w", err)
	}

	now := v.now()
	for _, h := range hashes {
		err := st.BackupCodes().CreateBackupCode(ctx, domain.BackupCode{
			ID:              idx.NewAt(now).String(),
			ConfigurationID: configurationID,
			CodeHash:        h,
			CreatedAt:       now,
		})
		if err != nil {
			return fmt.Errorf("failed to store backup code: %w", err)
		}
	}
	return nil
}

// Match returns the id of the unused code equal to code, or "" when none
// matches. It does not mark anything used.
func (v *BackupCodeVault) Match(ctx context.Context, configurationID, code string) (string, error) {
	if !totpx.IsBackupCodeShaped(code) {
		return "", nil
	}
	normalized := totpx.NormalizeBackupCode(code)

	unused, err := v.Store.BackupCodes().ListUnusedBackupCodes(ctx, configurationID)
	if err != nil {
		return "", fmt.Errorf("failed to list backup codes: %w", err)
	}

	for _, bc := range unused {
		ok, err := v.Hasher.Verify(ctx, bc.CodeHash, normalized)
		if err != nil {
			return "", err
		}
		if ok {
			return bc.ID, nil
		}
	}
	return "", nil
}

// MarkUsed burns a matched code. It reports false when another request
// used it first.
func (v *BackupCodeVault) MarkUsed(ctx context.Context, st store.Store, id string) (bool, error) {
	ok, err := st.BackupCodes().MarkBackupCodeUsed(ctx, id, v.now())
	if err != nil {
		return false, fmt.Errorf("failed to mark backup code used: %w", err)
	}
	return ok, nil
}

// Consume matches and burns code in one step.
func (v *BackupCodeVault) Consume(ctx context.Context, configurationID, code string) (bool, error) {
	id, err := v.Match(ctx, configurationID, code)
	if err != nil || id == "" {
		return false, err
	}
	return v.MarkUsed(ctx, v.Store, id)
}

// Remaining counts the unused codes of a configuration.
func (v *BackupCodeVault) Remaining(ctx context.Context, configurationID string) (int, error) {
	unused, err := v.Store.BackupCodes().ListUnusedBackupCodes(ctx, configurationID)
	if err != nil {
		return 0, fmt.Errorf("failed to list backup codes: %w", err)
	}
	return len(unused), nil
}
