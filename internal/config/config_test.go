package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tg_signal_trader/internal/domain"
)

func TestDefaultsAreValid(t *testing.T) {
	s := Defaults()
	require.NoError(t, s.Validate())
	assert.Equal(t, "USDT", s.QuoteAsset)
	assert.Equal(t, 0.80, s.CapitalEntryPctDefault)
	assert.Equal(t, 0.015, s.MaxSlippagePct)
	assert.Equal(t, TPSplits{TP1: 0.5, TP2: 0.3, Runner: 0.2}, s.TPSplits)
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), *s)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dry_run: true\ntrailing_pct: 0.05\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	assert.True(t, s.DryRun)
	assert.Equal(t, 0.05, s.TrailingPct)
	// Untouched fields keep their defaults.
	assert.Equal(t, 5.0, s.MinNotionalUSDT)
}

func TestValidateRejectsBadSplits(t *testing.T) {
	s := Defaults()
	s.TPSplits = TPSplits{TP1: 0.5, TP2: 0.3, Runner: 0.3}

	err := s.Validate()
	require.Error(t, err)
	var verr *domain.ConfigValidationError
	require.ErrorAs(t, err, &verr)
	assert.NotEmpty(t, verr.Problems)
}

func TestValidateAbsoluteSLRequiresOverride(t *testing.T) {
	s := Defaults()
	s.OverrideSLAsAbsolute = true
	require.Error(t, s.Validate())

	s.OverrideSLEnabled = true
	s.OverrideSLPct = 0.5
	require.NoError(t, s.Validate())
}

func TestManagerReplaceSwapsAtomically(t *testing.T) {
	initial := Defaults()
	m := NewManager(&initial)

	next := Defaults()
	next.DryRun = true
	require.NoError(t, m.Replace(next))
	assert.True(t, m.Snapshot().DryRun)
}

func TestManagerRejectedReplaceKeepsOldSnapshot(t *testing.T) {
	initial := Defaults()
	m := NewManager(&initial)
	before := m.Snapshot()

	bad := Defaults()
	bad.TrailingPct = 2.0
	require.Error(t, m.Replace(bad))
	assert.Same(t, before, m.Snapshot())
}

func TestSnapshotUnaffectedByLaterReplace(t *testing.T) {
	initial := Defaults()
	m := NewManager(&initial)

	snap := m.Snapshot()
	next := Defaults()
	next.TrailingPct = 0.02
	require.NoError(t, m.Replace(next))

	// An operation that captured the old snapshot keeps running under it.
	assert.Equal(t, 0.08, snap.TrailingPct)
	assert.Equal(t, 0.02, m.Snapshot().TrailingPct)
}
