package app

import (
	"context"
	"errors"
	"unicode/utf8"

	"partyquiz-service/internal/domain"
)

// RegistrationState tracks where one client is in the join protocol.
type RegistrationState int

const (
	// StateIdle: no nickname offered yet.
	StateIdle RegistrationState = iota
	// StateChecking: looking up whether the nickname is already registered.
	StateChecking
	// StateJoining: nickname is free; waiting for an explicit join submit.
	StateJoining
	// StateRegistered: the client owns a participant row.
	StateRegistered
)

func (s RegistrationState) String() string {
	switch s {
	case StateChecking:
		return "checking"
	case StateJoining:
		return "joining"
	case StateRegistered:
		return "registered"
	default:
		return "idle"
	}
}

const maxNicknameLen = 20

// Registration runs the join protocol for one client against one game:
// Idle -> Checking -> {Registered | Joining} -> Registered. A nickname that
// already has a participant row rejoins without creating a duplicate; a free
// nickname must be claimed with Submit. The store arbitrates races: when two
// clients submit the same nickname, exactly one Submit succeeds and the other
// gets ErrNicknameTaken and drops back to Joining. No alternate nickname is
// suggested; the client picks another and resubmits.
type Registration struct {
	store       Store
	gameID      string
	state       RegistrationState
	participant *domain.Participant
}

func NewRegistration(store Store, gameID string) *Registration {
	return &Registration{store: store, gameID: gameID, state: StateIdle}
}

func (r *Registration) State() RegistrationState {
	return r.state
}

// Participant returns the registered row, or nil before registration.
func (r *Registration) Participant() *domain.Participant {
	return r.participant
}

// Resolve reacts to a nickname being offered: it checks for an existing
// (game, nickname) row and either completes a rejoin (returning the existing
// participant) or leaves the protocol in Joining with a nil participant.
func (r *Registration) Resolve(ctx context.Context, nickname string) (*domain.Participant, error) {
	if err := validNickname(nickname); err != nil {
		return nil, err
	}
	r.state = StateChecking
	existing, found, err := r.store.FindParticipant(ctx, r.gameID, nickname)
	if err != nil {
		r.state = StateIdle
		return nil, err
	}
	if found {
		r.state = StateRegistered
		r.participant = &existing
		return r.participant, nil
	}
	r.state = StateJoining
	return nil, nil
}

// Submit claims the nickname. On a uniqueness conflict the protocol returns
// to Joining and the error is surfaced unchanged. Submitting a nickname that
// resolved to an existing row earlier returns that row idempotently.
func (r *Registration) Submit(ctx context.Context, nickname string) (domain.Participant, error) {
	if r.state == StateRegistered && r.participant != nil && r.participant.Nickname == nickname {
		return *r.participant, nil
	}
	if _, err := r.Resolve(ctx, nickname); err != nil {
		return domain.Participant{}, err
	}
	if r.state == StateRegistered {
		return *r.participant, nil
	}

	created, err := r.store.CreateParticipant(ctx, r.gameID, nickname)
	if err != nil {
		r.state = StateJoining
		return domain.Participant{}, err
	}
	r.state = StateRegistered
	r.participant = &created
	return created, nil
}

func validNickname(nickname string) error {
	if nickname == "" || utf8.RuneCountInString(nickname) > maxNicknameLen {
		return domain.ErrNicknameInvalid
	}
	return nil
}

// IsConflict reports whether err is the lost side of a registration race.
func IsConflict(err error) bool {
	return errors.Is(err, domain.ErrNicknameTaken)
}
