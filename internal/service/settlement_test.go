package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wager-game-bot/internal/model"
	"wager-game-bot/internal/session"
)

type fakeTransferLedger struct {
	transfers []transfer
	err       error
}

type transfer struct {
	from, to, amount int64
}

func (f *fakeTransferLedger) GetBalance(context.Context, int64) (int64, error) {
	return 0, nil
}

func (f *fakeTransferLedger) ApplyTransfer(_ context.Context, fromID, toID, amount int64, _, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.transfers = append(f.transfers, transfer{fromID, toID, amount})
	return nil
}

type fakeRecorder struct {
	records []*model.MatchRecord
	err     error
}

func (f *fakeRecorder) Create(_ context.Context, rec *model.MatchRecord) error {
	if f.err != nil {
		return f.err
	}
	f.records = append(f.records, rec)
	return nil
}

func completedSession(t *testing.T) *session.Session {
	sess := session.New(session.GameTypeDeathroll,
		session.Player{ID: 1, Name: "alice"},
		session.Player{ID: 2, Name: "bob"},
		500, -100, time.Now().Add(time.Minute))
	require.NoError(t, sess.Update(time.Now(), func() error {
		sess.State = session.StateCompleted
		sess.Outcome = &session.Outcome{WinnerID: 2, LoserID: 1, Amount: 500}
		return nil
	}))
	return sess
}

func TestSettlement_Settle(t *testing.T) {
	l := &fakeTransferLedger{}
	rec := &fakeRecorder{}
	s := NewSettlementService(l, rec)

	sess := completedSession(t)
	require.NoError(t, s.Settle(context.Background(), sess))

	require.Len(t, l.transfers, 1)
	assert.Equal(t, transfer{1, 2, 500}, l.transfers[0])

	require.Len(t, rec.records, 1)
	assert.Equal(t, sess.ID, rec.records[0].SessionID)
	assert.Equal(t, int64(2), rec.records[0].WinnerID)
}

func TestSettlement_Idempotent(t *testing.T) {
	l := &fakeTransferLedger{}
	rec := &fakeRecorder{}
	s := NewSettlementService(l, rec)

	sess := completedSession(t)
	require.NoError(t, s.Settle(context.Background(), sess))
	require.NoError(t, s.Settle(context.Background(), sess))
	require.NoError(t, s.Settle(context.Background(), sess))

	// Only the first call moved funds or wrote history
	assert.Len(t, l.transfers, 1)
	assert.Len(t, rec.records, 1)
}

func TestSettlement_RejectsUnfinishedSession(t *testing.T) {
	l := &fakeTransferLedger{}
	s := NewSettlementService(l, &fakeRecorder{})

	sess := session.New(session.GameTypeRPS,
		session.Player{ID: 1, Name: "alice"},
		session.Player{ID: 2, Name: "bob"},
		500, -100, time.Now().Add(time.Minute))

	err := s.Settle(context.Background(), sess)
	assert.Error(t, err)
	assert.Empty(t, l.transfers)
}

func TestSettlement_TransferFailureReturned(t *testing.T) {
	l := &fakeTransferLedger{err: errors.New("ledger down")}
	rec := &fakeRecorder{}
	s := NewSettlementService(l, rec)

	sess := completedSession(t)
	err := s.Settle(context.Background(), sess)
	assert.Error(t, err)
	assert.Empty(t, rec.records)
}

func TestSettlement_RecorderFailureSwallowed(t *testing.T) {
	l := &fakeTransferLedger{}
	rec := &fakeRecorder{err: errors.New("history down")}
	s := NewSettlementService(l, rec)

	sess := completedSession(t)
	require.NoError(t, s.Settle(context.Background(), sess))
	assert.Len(t, l.transfers, 1)
}
