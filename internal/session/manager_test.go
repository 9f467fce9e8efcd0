package session

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOpener struct {
	opened int
}

func (f *fakeOpener) OpenConversation(ctx context.Context) (string, error) {
	f.opened++
	return fmt.Sprintf("conv-%d", f.opened), nil
}

func openTestManager(t *testing.T) (*Manager, *fakeOpener) {
	t.Helper()
	opener := &fakeOpener{}
	m, err := Open(filepath.Join(t.TempDir(), "sessions.db"), opener)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m, opener
}

func TestGetOrCreateReusesActiveSession(t *testing.T) {
	m, opener := openTestManager(t)
	ctx := context.Background()

	s1, err := m.GetOrCreate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, StatusActive, s1.Status)
	assert.Equal(t, "conv-1", s1.EngineHandle)

	s2, err := m.GetOrCreate(ctx, "chan-1")
	require.NoError(t, err)
	assert.Equal(t, s1.ID, s2.ID, "repeated calls must return the same active session")
	assert.Equal(t, 1, opener.opened, "no second engine conversation for the same channel")

	other, err := m.GetOrCreate(ctx, "chan-2")
	require.NoError(t, err)
	assert.NotEqual(t, s1.ID, other.ID)
}

func TestTouchUpdatesActivity(t *testing.T) {
	m, _ := openTestManager(t)
	ctx := context.Background()

	s, err := m.GetOrCreate(ctx, "chan-1")
	require.NoError(t, err)

	m.now = func() time.Time { return time.Now().Add(time.Hour) }
	require.NoError(t, m.Touch(ctx, s.ID))

	got, err := m.Get(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, got.LastActivity.After(s.LastActivity))

	assert.ErrorIs(t, m.Touch(ctx, "nope"), ErrNotFound)
}

func TestArchiveOlderThan(t *testing.T) {
	m, opener := openTestManager(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	stale, err := m.GetOrCreate(ctx, "stale-chan")
	require.NoError(t, err)

	m.now = func() time.Time { return base.AddDate(0, 0, 10) }
	fresh, err := m.GetOrCreate(ctx, "fresh-chan")
	require.NoError(t, err)

	n, err := m.ArchiveOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := m.Get(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusArchived, got.Status)

	got, err = m.Get(ctx, fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)

	// Idempotent: a second sweep archives nothing new.
	n, err = m.ArchiveOlderThan(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Archival is append-only: the channel gets a brand-new session.
	replacement, err := m.GetOrCreate(ctx, "stale-chan")
	require.NoError(t, err)
	assert.NotEqual(t, stale.ID, replacement.ID)
	assert.Equal(t, 3, opener.opened)
}

func TestActiveCount(t *testing.T) {
	m, _ := openTestManager(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := m.GetOrCreate(ctx, fmt.Sprintf("chan-%d", i))
		require.NoError(t, err)
	}

	n, err := m.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	m.now = func() time.Time { return time.Now().AddDate(0, 0, 60) }
	_, err = m.ArchiveOlderThan(ctx, 30)
	require.NoError(t, err)

	n, err = m.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestSweeperRunsArchival(t *testing.T) {
	m, _ := openTestManager(t)
	ctx := context.Background()

	_, err := m.GetOrCreate(ctx, "chan-1")
	require.NoError(t, err)
	m.now = func() time.Time { return time.Now().AddDate(0, 0, 60) }

	sw := NewSweeper(m, time.Hour, 30)
	sw.SweepNow(ctx)

	n, err := m.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}
