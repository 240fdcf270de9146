package totpx

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
)

// DefaultBackupCodeCount is how many codes an enrollment hands out.
const DefaultBackupCodeCount = 8

const backupAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// Largest multiple of len(backupAlphabet) that fits in a byte; bytes at or
// above it are rejected so every symbol is equally likely.
const backupCutoff = 256 - 256%len(backupAlphabet)

var backupShape = regexp.MustCompile(`^[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// GenerateBackupCodes returns count random codes formatted XXXX-XXXX.
func GenerateBackupCodes(count int) ([]string, error) {
	if count <= 0 {
		count = DefaultBackupCodeCount
	}
	codes := make([]string, 0, count)
	seen := make(map[string]struct{}, count)
	for len(codes) < count {
		code, err := backupCode()
		if err != nil {
			return nil, err
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes, nil
}

func backupCode() (string, error) {
	out := make([]byte, 0, 9)
	buf := make([]byte, 16)
	for len(out) < 9 {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("totpx: failed to generate backup code: %w", err)
		}
		for _, b := range buf {
			if int(b) >= backupCutoff {
				continue
			}
			if len(out) == 4 {
				out = append(out, '-')
			}
			out = append(out, backupAlphabet[int(b)%len(backupAlphabet)])
			if len(out) == 9 {
				break
			}
		}
	}
	return string(out), nil
}

// NormalizeBackupCode upper-cases and trims input and restores the hyphen
// when it was typed as eight bare characters.
func NormalizeBackupCode(code string) string {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) == 8 && !strings.Contains(code, "-") {
		code = code[:4] + "-" + code[4:]
	}
	return code
}

// IsBackupCodeShaped reports whether code normalises to XXXX-XXXX.
func IsBackupCodeShaped(code string) bool {
	return backupShape.MatchString(NormalizeBackupCode(code))
}
