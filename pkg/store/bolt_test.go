package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "flags.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutAssignsIdentity(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.Put(Flagged{
		QName:      "evil.payload.xyz",
		Verdict:    "SUSPICIOUS",
		Confidence: 90.5,
		Score:      0.905,
		Source:     "watch",
	}))

	got, err := s.Recent(10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.NotEqual(t, got[0].ID.String(), "00000000-0000-0000-0000-000000000000")
	assert.False(t, got[0].ObservedAt.IsZero())
	assert.Equal(t, "evil.payload.xyz", got[0].QName)
	assert.Equal(t, 90.5, got[0].Confidence)
}

func TestRecentNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 1, 2, 10, 0, 0, 0, time.UTC)
	for i, name := range []string{"first.test", "second.test", "third.test"} {
		require.NoError(t, s.Put(Flagged{
			QName:      name,
			Verdict:    "SUSPICIOUS",
			ObservedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	got, err := s.Recent(2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third.test", got[0].QName)
	assert.Equal(t, "second.test", got[1].QName)

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestRecentZeroLimit(t *testing.T) {
	s := openTestStore(t)
	got, err := s.Recent(0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestOffsetCheckpoint(t *testing.T) {
	s := openTestStore(t)

	off, err := s.Offset("/var/log/dns_log.csv")
	require.NoError(t, err)
	assert.Zero(t, off, "no checkpoint means start of file")

	require.NoError(t, s.SaveOffset("/var/log/dns_log.csv", 4096))
	require.NoError(t, s.SaveOffset("/var/log/other.csv", 17))

	off, err = s.Offset("/var/log/dns_log.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), off)

	off, err = s.Offset("/var/log/other.csv")
	require.NoError(t, err)
	assert.Equal(t, int64(17), off, "checkpoints are per log path")
}

func TestPersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flags.db")

	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.Put(Flagged{QName: "a.b.c", Verdict: "SUSPICIOUS"}))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	n, err := s.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
