package loader

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"stockwatch/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const profilesV1 = `
profiles:
  Swing:
    min_signal_strength: 5
    min_net_strength: 10
    min_confirmations: 2
    description: 两条以上中强信号
  moderate:
    min_signal_strength: 3
    min_net_strength: 6
    min_confirmations: 1
`

func TestParseProfilesNormalizesNames(t *testing.T) {
	profiles, err := ParseProfiles([]byte(profilesV1))
	require.NoError(t, err)
	require.Contains(t, profiles, "swing")
	assert.Equal(t, "swing", profiles["swing"].Name)
	assert.Equal(t, 10, profiles["swing"].MinNetStrength)
	assert.Equal(t, 3, profiles["moderate"].MinSignalStrength)
}

func TestParseProfilesRejectsBadInput(t *testing.T) {
	_, err := ParseProfiles([]byte("profiles:\n  x:\n    min_signal_strength: 11\n    min_net_strength: 1\n    min_confirmations: 1\n"))
	var cerr *config.Error
	assert.True(t, errors.As(err, &cerr))

	_, err = ParseProfiles([]byte("profiles:\n  x:\n    min_strength: 3\n"))
	assert.Error(t, err, "unknown field")
}

func TestEmptyFileYieldsNoOverrides(t *testing.T) {
	profiles, err := ParseProfiles(nil)
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestLoaderResolvesOverridesThenBuiltins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesV1), 0o644))
	l, err := NewProfileLoader(path)
	require.NoError(t, err)

	snap := l.Snapshot()
	assert.Equal(t, int64(1), snap.Version)
	p, err := snap.Resolve("MODERATE")
	require.NoError(t, err)
	assert.Equal(t, 6, p.MinNetStrength)
	p, err = snap.Resolve("conservative")
	require.NoError(t, err)
	assert.Equal(t, 14, p.MinNetStrength)

	snap.Profiles["swing"] = snap.Profiles["moderate"]
	assert.Equal(t, 10, l.Profiles()["swing"].MinNetStrength, "snapshot must be a copy")
}

func TestLoaderHotReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(profilesV1), 0o644))
	l, err := NewProfileLoader(path)
	require.NoError(t, err)

	updates := make(chan ProfileSnapshot, 8)
	l.Subscribe(func(s ProfileSnapshot) { updates <- s })
	first := <-updates
	assert.Equal(t, int64(1), first.Version)

	next := "profiles:\n  swing:\n    min_signal_strength: 7\n    min_net_strength: 20\n    min_confirmations: 3\n"
	require.NoError(t, os.WriteFile(path, []byte(next), 0o644))

	require.Eventually(t, func() bool {
		return l.Snapshot().Profiles["swing"].MinNetStrength == 20
	}, 5*time.Second, 20*time.Millisecond)
	assert.NotContains(t, l.Profiles(), "moderate")
}
