package sqlstore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestDialect_Rebind(t *testing.T) {
	pg := Dialect{NumberedPlaceholders: true}
	require.Equal(t,
		"UPDATE t SET a = $1 WHERE id = $2 AND b IS NULL",
		pg.rebind("UPDATE t SET a = ? WHERE id = ? AND b IS NULL"))

	lite := Dialect{}
	require.Equal(t, "SELECT ? , ?", lite.rebind("SELECT ? , ?"))
}

func TestSplitFields(t *testing.T) {
	require.Nil(t, splitFields(""))
	require.Nil(t, splitFields("   "))
	require.Equal(t, []string{"user", "admin"}, splitFields(" user admin user "))
	require.Equal(t, "pwd otp", joinFields([]string{"pwd", "otp"}))
}

func TestMillis(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 123_456_789, time.UTC)
	got := fromMillis(millis(now))
	require.Equal(t, now.Truncate(time.Millisecond), got)

	require.Nil(t, fromNullMillis(nullMillis(nil)))
	require.Equal(t, now.Truncate(time.Millisecond), *fromNullMillis(nullMillis(&now)))
}

func TestMetadata(t *testing.T) {
	raw, err := encodeMetadata(nil)
	require.NoError(t, err)
	require.Equal(t, "{}", raw)
	require.Nil(t, decodeMetadata(raw))

	raw, err = encodeMetadata(map[string]string{"method": "totp"})
	require.NoError(t, err)
	require.Equal(t, map[string]string{"method": "totp"}, decodeMetadata(raw))
}
