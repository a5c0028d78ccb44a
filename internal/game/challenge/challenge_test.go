package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wager-game-bot/internal/session"
)

// fakeLedger is an in-memory ledger for handshake tests. Transfers are
// recorded so tests can assert no funds move before settlement.
type fakeLedger struct {
	balances  map[int64]int64
	transfers int
}

func (f *fakeLedger) GetBalance(_ context.Context, playerID int64) (int64, error) {
	return f.balances[playerID], nil
}

func (f *fakeLedger) ApplyTransfer(_ context.Context, fromID, toID, amount int64, _, _ string) error {
	f.transfers++
	f.balances[fromID] -= amount
	f.balances[toID] += amount
	return nil
}

var (
	alice = session.Player{ID: 1, Name: "alice"}
	bob   = session.Player{ID: 2, Name: "bob"}
)

func newTestCoordinator(balances map[int64]int64) (*Coordinator, *session.Registry, *fakeLedger) {
	reg := session.NewRegistry()
	l := &fakeLedger{balances: balances}
	c := NewCoordinator(reg, l, Config{MinWager: 100, Timeout: 2 * time.Minute})
	return c, reg, l
}

func TestCoordinator_Propose(t *testing.T) {
	c, reg, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	sess, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
	require.NoError(t, err)
	assert.Equal(t, session.StateAwaitingAcceptance, sess.View().State)
	assert.Equal(t, int64(500), sess.Wager)
	assert.Equal(t, 1, reg.Len())
}

func TestCoordinator_Propose_Validation(t *testing.T) {
	ctx := context.Background()

	t.Run("wager below minimum", func(t *testing.T) {
		c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
		_, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 50, -100)
		assert.ErrorIs(t, err, ErrInvalidWager)
	})

	t.Run("zero and negative wager", func(t *testing.T) {
		c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
		_, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 0, -100)
		assert.ErrorIs(t, err, ErrInvalidWager)
		_, err = c.Propose(ctx, session.GameTypeDeathroll, alice, bob, -500, -100)
		assert.ErrorIs(t, err, ErrInvalidWager)
	})

	t.Run("self challenge", func(t *testing.T) {
		c, _, _ := newTestCoordinator(map[int64]int64{1: 1000})
		_, err := c.Propose(ctx, session.GameTypeDeathroll, alice, alice, 500, -100)
		assert.ErrorIs(t, err, ErrSelfChallenge)
	})

	t.Run("initiator cannot cover wager", func(t *testing.T) {
		c, _, _ := newTestCoordinator(map[int64]int64{1: 100, 2: 1000})
		_, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("target cannot cover wager", func(t *testing.T) {
		c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 100})
		_, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
	})

	t.Run("player already in a match", func(t *testing.T) {
		c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000, 3: 1000})
		_, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
		require.NoError(t, err)

		carol := session.Player{ID: 3, Name: "carol"}
		_, err = c.Propose(ctx, session.GameTypeRPS, carol, bob, 200, -100)
		assert.ErrorIs(t, err, ErrAlreadyInMatch)
	})
}

func TestCoordinator_Accept(t *testing.T) {
	c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	sess, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
	require.NoError(t, err)

	accepted, err := c.Accept(ctx, sess.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateInProgress, accepted.View().State)
}

func TestCoordinator_Accept_OnlyTarget(t *testing.T) {
	c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	sess, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
	require.NoError(t, err)

	// The initiator cannot accept their own challenge
	_, err = c.Accept(ctx, sess.ID, alice.ID)
	assert.ErrorIs(t, err, ErrUnauthorizedActor)

	// A bystander is not a participant at all
	_, err = c.Accept(ctx, sess.ID, 99)
	assert.ErrorIs(t, err, session.ErrNotAParticipant)

	assert.Equal(t, session.StateAwaitingAcceptance, sess.View().State)
}

func TestCoordinator_Accept_BalanceRecheck(t *testing.T) {
	c, _, l := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	sess, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
	require.NoError(t, err)

	// Bob's balance drops between propose and accept
	l.balances[2] = 100

	_, err = c.Accept(ctx, sess.ID, bob.ID)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, session.StateAwaitingAcceptance, sess.View().State)
}

func TestCoordinator_Accept_AlreadyStarted(t *testing.T) {
	c, _, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	sess, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
	require.NoError(t, err)

	_, err = c.Accept(ctx, sess.ID, bob.ID)
	require.NoError(t, err)

	// A second accept hits a session that is no longer awaiting acceptance
	_, err = c.Accept(ctx, sess.ID, bob.ID)
	assert.ErrorIs(t, err, session.ErrSessionTerminated)
}

func TestCoordinator_Decline(t *testing.T) {
	c, reg, _ := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	sess, err := c.Propose(ctx, session.GameTypeRPS, alice, bob, 500, -100)
	require.NoError(t, err)

	_, err = c.Decline(ctx, sess.ID, alice.ID)
	assert.ErrorIs(t, err, ErrUnauthorizedActor)

	declined, err := c.Decline(ctx, sess.ID, bob.ID)
	require.NoError(t, err)
	assert.Equal(t, session.StateExpired, declined.View().State)
	assert.Equal(t, 0, reg.Len())

	// Declining again finds no live session
	_, err = c.Decline(ctx, sess.ID, bob.ID)
	assert.ErrorIs(t, err, session.ErrSessionTerminated)
}

func TestCoordinator_Timeout_NoBalanceChanges(t *testing.T) {
	c, reg, l := newTestCoordinator(map[int64]int64{1: 1000, 2: 1000})
	ctx := context.Background()

	base := time.Now()
	c.SetClock(func() time.Time { return base })

	sess, err := c.Propose(ctx, session.GameTypeDeathroll, alice, bob, 500, -100)
	require.NoError(t, err)

	// The sweeper fires after the acceptance window
	reg.Sweep(base.Add(3 * time.Minute))

	assert.Equal(t, session.StateExpired, sess.View().State)
	assert.Equal(t, 0, reg.Len())
	assert.Equal(t, 0, l.transfers)
	assert.Equal(t, int64(1000), l.balances[1])
	assert.Equal(t, int64(1000), l.balances[2])

	// A late accept loses the race against the timeout
	c.SetClock(func() time.Time { return base.Add(4 * time.Minute) })
	_, err = c.Accept(ctx, sess.ID, bob.ID)
	assert.ErrorIs(t, err, session.ErrSessionTerminated)
}
