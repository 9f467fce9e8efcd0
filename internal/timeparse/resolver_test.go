package timeparse

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = time.Date(2026, 8, 24, 12, 0, 0, 0, time.UTC)

func TestResolveRelativeOffset(t *testing.T) {
	got, err := Resolve("in 10 minutes", "UTC", ref)
	require.NoError(t, err)
	assert.Equal(t, ref.Add(10*time.Minute), got.UTC())
}

func TestResolveHonorsTimezone(t *testing.T) {
	got, err := Resolve("in 2 hours", "America/New_York", ref)
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", got.Location().String())
	assert.Equal(t, ref.Add(2*time.Hour).Unix(), got.Unix())
}

func TestResolveInvalidTimezone(t *testing.T) {
	_, err := Resolve("in 10 minutes", "Mars/Olympus_Mons", ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTimezone))
}

func TestResolveUnparseable(t *testing.T) {
	_, err := Resolve("when the stars align", "UTC", ref)
	require.Error(t, err)

	var uerr *UnparseableError
	require.True(t, errors.As(err, &uerr))
	assert.Equal(t, "when the stars align", uerr.Input)
	// The message carries corrective examples for the user.
	assert.True(t, strings.Contains(uerr.Error(), Examples[0]))
}

func TestResolvePastTime(t *testing.T) {
	_, err := Resolve("yesterday", "UTC", ref)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeInPast))
}

func TestResolveDeterministic(t *testing.T) {
	a, err := Resolve("tomorrow at 9am", "UTC", ref)
	require.NoError(t, err)
	b, err := Resolve("tomorrow at 9am", "UTC", ref)
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.True(t, a.After(ref))
}
