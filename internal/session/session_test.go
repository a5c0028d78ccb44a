package session

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(deadline time.Time) *Session {
	return New(GameTypeDeathroll,
		Player{ID: 1, Name: "alice"},
		Player{ID: 2, Name: "bob"},
		500, -100, deadline)
}

func TestSession_New(t *testing.T) {
	deadline := time.Now().Add(2 * time.Minute)
	s := newTestSession(deadline)

	assert.NotEmpty(t, s.ID)
	assert.Equal(t, GameTypeDeathroll, s.GameType)
	assert.Equal(t, StateAwaitingAcceptance, s.State)
	assert.Equal(t, int64(1), s.Initiator().ID)
	assert.Equal(t, int64(2), s.Target().ID)
	assert.Equal(t, 1, s.Round)
	assert.True(t, s.IsParticipant(1))
	assert.True(t, s.IsParticipant(2))
	assert.False(t, s.IsParticipant(3))
	assert.Equal(t, int64(2), s.Opponent(1).ID)
	assert.Equal(t, int64(1), s.Opponent(2).ID)
}

func TestSession_Update(t *testing.T) {
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))

	err := s.Update(now, func() error {
		s.State = StateInProgress
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, StateInProgress, s.View().State)

	// Errors from fn pass through without state change
	sentinel := errors.New("nope")
	err = s.Update(now, func() error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
	assert.Equal(t, StateInProgress, s.View().State)
}

func TestSession_Update_PastDeadlineExpires(t *testing.T) {
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))

	called := false
	err := s.Update(now.Add(2*time.Minute), func() error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrSessionTerminated)
	assert.False(t, called)
	assert.Equal(t, StateExpired, s.View().State)
}

func TestSession_Update_TerminalRejects(t *testing.T) {
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))

	require.NoError(t, s.Update(now, func() error {
		s.State = StateCompleted
		return nil
	}))

	err := s.Update(now, func() error { return nil })
	assert.ErrorIs(t, err, ErrSessionTerminated)
}

func TestSession_ExpireIfDue(t *testing.T) {
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))

	assert.False(t, s.ExpireIfDue(now))
	assert.Equal(t, StateAwaitingAcceptance, s.View().State)

	assert.True(t, s.ExpireIfDue(now.Add(2*time.Minute)))
	assert.Equal(t, StateExpired, s.View().State)

	// Already terminal, no second expiry
	assert.False(t, s.ExpireIfDue(now.Add(3*time.Minute)))
}

func TestSession_ClaimExpiryNotice(t *testing.T) {
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))

	// Nothing to claim while the session is live
	assert.False(t, s.ClaimExpiryNotice())

	require.True(t, s.ExpireIfDue(now.Add(2*time.Minute)))
	assert.True(t, s.ClaimExpiryNotice())
	assert.False(t, s.ClaimExpiryNotice())
}

func TestSession_MarkSettled(t *testing.T) {
	s := newTestSession(time.Now().Add(time.Minute))

	assert.True(t, s.MarkSettled())
	assert.False(t, s.MarkSettled())
	assert.False(t, s.MarkSettled())
}

func TestSession_ViewSnapshotsOutcome(t *testing.T) {
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))

	require.NoError(t, s.Update(now, func() error {
		s.State = StateCompleted
		s.Outcome = &Outcome{WinnerID: 2, LoserID: 1, Amount: 500}
		return nil
	}))

	v := s.View()
	require.NotNil(t, v.Outcome)
	assert.Equal(t, int64(2), v.Outcome.WinnerID)

	// Mutating the snapshot does not touch the session
	v.Outcome.WinnerID = 99
	assert.Equal(t, int64(2), s.View().Outcome.WinnerID)
}

func TestRegistry_AddGetRemove(t *testing.T) {
	r := NewRegistry()
	s := newTestSession(time.Now().Add(time.Minute))

	r.Add(s)
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get(s.ID)
	require.True(t, ok)
	assert.Same(t, s, got)

	r.Remove(s.ID)
	assert.Equal(t, 0, r.Len())
	_, ok = r.Get(s.ID)
	assert.False(t, ok)
}

func TestRegistry_ActiveFor(t *testing.T) {
	r := NewRegistry()
	s := newTestSession(time.Now().Add(time.Minute))
	r.Add(s)

	assert.True(t, r.ActiveFor(1))
	assert.True(t, r.ActiveFor(2))
	assert.False(t, r.ActiveFor(3))
}

func TestRegistry_SweepExpiresAndNotifies(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))
	r.Add(s)

	var expired []*Session
	r.OnExpire(func(es *Session) { expired = append(expired, es) })

	// Before the deadline nothing happens
	r.Sweep(now)
	assert.Empty(t, expired)
	assert.Equal(t, 1, r.Len())

	// Past the deadline the session expires, callbacks fire, and the
	// terminal session is dropped from the registry
	r.Sweep(now.Add(2 * time.Minute))
	require.Len(t, expired, 1)
	assert.Same(t, s, expired[0])
	assert.Equal(t, StateExpired, s.View().State)
	assert.Equal(t, 0, r.Len())
}

func TestRegistry_SweepAnnouncesLateActionExpiry(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))
	r.Add(s)

	var expired []*Session
	r.OnExpire(func(es *Session) { expired = append(expired, es) })

	// A late action wins the race and expires the session inside Update,
	// before the sweeper ever sees it due
	err := s.Update(now.Add(2*time.Minute), func() error { return nil })
	require.ErrorIs(t, err, ErrSessionTerminated)
	assert.Equal(t, StateExpired, s.View().State)
	assert.Empty(t, expired)

	// The sweep still announces the expiry exactly once and drops the session
	r.Sweep(now.Add(3 * time.Minute))
	require.Len(t, expired, 1)
	assert.Same(t, s, expired[0])
	assert.Equal(t, 0, r.Len())

	r.Sweep(now.Add(4 * time.Minute))
	assert.Len(t, expired, 1)
}

func TestRegistry_AddIfIdle(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))
	require.True(t, r.AddIfIdle(s))

	// Either participant being busy blocks a second session
	overlap := New(GameTypeRPS,
		Player{ID: 2, Name: "bob"},
		Player{ID: 3, Name: "carol"},
		500, -100, now.Add(time.Minute))
	assert.False(t, r.AddIfIdle(overlap))
	assert.Equal(t, 1, r.Len())

	// Disjoint players get in
	other := New(GameTypeRPS,
		Player{ID: 3, Name: "carol"},
		Player{ID: 4, Name: "dave"},
		500, -100, now.Add(time.Minute))
	assert.True(t, r.AddIfIdle(other))

	// Terminal sessions no longer block their players
	require.NoError(t, s.Update(now, func() error {
		s.State = StateCompleted
		return nil
	}))
	rematch := newTestSession(now.Add(time.Minute))
	assert.True(t, r.AddIfIdle(rematch))
}

func TestRegistry_SweepRemovesCompleted(t *testing.T) {
	r := NewRegistry()
	now := time.Now()
	s := newTestSession(now.Add(time.Minute))
	r.Add(s)

	require.NoError(t, s.Update(now, func() error {
		s.State = StateCompleted
		return nil
	}))

	var expired int
	r.OnExpire(func(*Session) { expired++ })

	r.Sweep(now)
	assert.Equal(t, 0, expired) // completed is not expired
	assert.Equal(t, 0, r.Len())
}
