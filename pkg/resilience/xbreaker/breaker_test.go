package xbreaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omeyang/xcluster/pkg/resilience/xretry"
)

var errDown = errors.New("down")

func TestBreaker_TripsAndRejects(t *testing.T) {
	var changes []State
	b := New[int]("tick", WithTripPolicy(NewConsecutiveFailures(2)), WithTimeout(time.Hour),
		WithOnStateChange(func(_ string, _, to State) { changes = append(changes, to) }))
	ctx := context.Background()

	for range 2 {
		_, err := b.Execute(ctx, func() (int, error) { return 0, errDown })
		require.ErrorIs(t, err, errDown)
	}
	assert.Equal(t, StateOpen, b.State())
	assert.Equal(t, []State{StateOpen}, changes)

	called := false
	_, err := b.Execute(ctx, func() (int, error) { called = true; return 1, nil })
	assert.False(t, called)
	assert.True(t, IsOpen(err))
	assert.True(t, IsBreakerError(err))

	var be *BreakerError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, "tick", be.Name)
	assert.False(t, xretry.IsRetryable(err))
}

func TestBreaker_PassesValues(t *testing.T) {
	b := New[string]("ok")
	v, err := b.Execute(context.Background(), func() (string, error) { return "v", nil })
	require.NoError(t, err)
	assert.Equal(t, "v", v)
	assert.EqualValues(t, 1, b.Counts().TotalSuccesses)
}

func TestBreaker_Guards(t *testing.T) {
	var nilB *Breaker[int]
	_, err := nilB.Execute(context.Background(), func() (int, error) { return 0, nil })
	require.ErrorIs(t, err, ErrNilBreaker)

	b := New[int]("g")
	_, err = b.Execute(context.Background(), nil)
	require.ErrorIs(t, err, ErrNilFunc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Execute(ctx, func() (int, error) { return 0, nil })
	require.ErrorIs(t, err, context.Canceled)
}

func TestFailureRatioPolicy(t *testing.T) {
	p := NewFailureRatio(0.5, 4)
	assert.False(t, p.ReadyToTrip(Counts{Requests: 2, TotalFailures: 2}))
	assert.True(t, p.ReadyToTrip(Counts{Requests: 4, TotalFailures: 2}))
	assert.False(t, p.ReadyToTrip(Counts{Requests: 4, TotalFailures: 1}))
	assert.True(t, NewFailureRatio(2, 1).ReadyToTrip(Counts{Requests: 1, TotalFailures: 1}))
}
