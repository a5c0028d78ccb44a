// Package session holds the per-match game session state shared by all
// interactive wagering games, and the registry that owns every live session.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Game type identifiers used in sessions and match history.
const (
	GameTypeDeathroll = "deathroll"
	GameTypeRPS       = "rps"
)

// Errors shared by all turn engines.
var (
	// ErrSessionTerminated is returned for any action against a session
	// that has already completed or expired. Late actions that lose the
	// race against a timeout land here.
	ErrSessionTerminated = errors.New("session is already over")

	// ErrNotAParticipant is returned when the acting player is not one
	// of the session's two participants.
	ErrNotAParticipant = errors.New("you are not part of this match")
)

// State is the lifecycle state of a session. Transitions are monotonic:
// AwaitingAcceptance -> InProgress or Expired, InProgress -> Completed,
// and a timed-out in-progress session goes to Expired with no settlement.
type State int

const (
	StateAwaitingAcceptance State = iota
	StateInProgress
	StateCompleted
	StateExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateAwaitingAcceptance:
		return "awaiting_acceptance"
	case StateInProgress:
		return "in_progress"
	case StateCompleted:
		return "completed"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// Terminal reports whether the state accepts no further actions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateExpired
}

// Player identifies a participant.
type Player struct {
	ID   int64
	Name string
}

// Outcome holds the result of a completed session. Set exactly once,
// when the session transitions to StateCompleted.
type Outcome struct {
	WinnerID int64
	LoserID  int64
	Amount   int64
}

// Session is the mutable per-match state. All mutation happens under the
// session's own mutex through Update; no lock is exposed to callers.
type Session struct {
	ID           string
	GameType     string
	ChatID       int64
	MessageID    int
	Wager        int64
	Participants [2]Player
	State        State
	CurrentTurn  int64 // player who must act next; meaningful only for turn-alternating games
	Round        int
	Deadline     time.Time
	Outcome      *Outcome

	// ExpiredFrom records the state the session was in when it expired,
	// so the presentation layer can tell an unanswered challenge from a
	// timed-out match.
	ExpiredFrom State

	settled        bool
	expiryNotified bool
	mu             sync.Mutex
}

// New creates a session in StateAwaitingAcceptance. The first participant
// is the challenge initiator, the second the target.
func New(gameType string, initiator, target Player, wager, chatID int64, deadline time.Time) *Session {
	return &Session{
		ID:           uuid.NewString(),
		GameType:     gameType,
		ChatID:       chatID,
		Wager:        wager,
		Participants: [2]Player{initiator, target},
		State:        StateAwaitingAcceptance,
		Round:        1,
		Deadline:     deadline,
	}
}

// Initiator returns the player who proposed the challenge.
func (s *Session) Initiator() Player { return s.Participants[0] }

// Target returns the player who was challenged.
func (s *Session) Target() Player { return s.Participants[1] }

// IsParticipant reports whether the player is part of this session.
func (s *Session) IsParticipant(playerID int64) bool {
	return s.Participants[0].ID == playerID || s.Participants[1].ID == playerID
}

// Opponent returns the other participant. The caller must have verified
// playerID is a participant.
func (s *Session) Opponent(playerID int64) Player {
	if s.Participants[0].ID == playerID {
		return s.Participants[1]
	}
	return s.Participants[0]
}

// Update runs fn with the session locked after resolving the race between
// the action and the session's deadline: a session past its deadline is
// expired before fn can observe it, and terminal sessions reject the
// action with ErrSessionTerminated. fn may mutate the session's fields.
func (s *Session) Update(now time.Time, fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State.Terminal() {
		return ErrSessionTerminated
	}
	if now.After(s.Deadline) {
		s.ExpiredFrom = s.State
		s.State = StateExpired
		return ErrSessionTerminated
	}
	return fn()
}

// ExpireIfDue transitions a non-terminal session past its deadline to
// StateExpired. Returns true if the session expired on this call.
func (s *Session) ExpireIfDue(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State.Terminal() || !now.After(s.Deadline) {
		return false
	}
	s.ExpiredFrom = s.State
	s.State = StateExpired
	return true
}

// ClaimExpiryNotice claims the one permitted expiry notification for an
// expired session. A session can reach StateExpired either from the sweeper
// or from a late action losing the race inside Update; whichever way it got
// there, the first caller gets true and owns announcing the expiry.
func (s *Session) ClaimExpiryNotice() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.State != StateExpired || s.expiryNotified {
		return false
	}
	s.expiryNotified = true
	return true
}

// MarkSettled claims the one permitted settlement for this session.
// Returns true on the first call and false on every later call.
func (s *Session) MarkSettled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settled {
		return false
	}
	s.settled = true
	return true
}

// View is an immutable copy of the session state for rendering.
type View struct {
	ID           string
	GameType     string
	ChatID       int64
	MessageID    int
	Wager        int64
	Participants [2]Player
	State        State
	CurrentTurn  int64
	Round        int
	Deadline     time.Time
	Outcome      *Outcome
	ExpiredFrom  State
}

// View returns a consistent snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		ID:           s.ID,
		GameType:     s.GameType,
		ChatID:       s.ChatID,
		MessageID:    s.MessageID,
		Wager:        s.Wager,
		Participants: s.Participants,
		State:        s.State,
		CurrentTurn:  s.CurrentTurn,
		Round:        s.Round,
		Deadline:     s.Deadline,
		ExpiredFrom:  s.ExpiredFrom,
	}
	if s.Outcome != nil {
		o := *s.Outcome
		v.Outcome = &o
	}
	return v
}

// SetMessageID records the chat message rendering this session so the
// presentation layer can disable it on expiry.
func (s *Session) SetMessageID(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.MessageID = id
}
