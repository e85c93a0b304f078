package app_test

import (
	"context"
	"errors"
	"testing"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
	"partyquiz-service/internal/infra/memory"
)

func newGame(t *testing.T, store *memory.Store) domain.Game {
	t.Helper()
	ctx := context.Background()
	set, err := store.CreateQuizSet(ctx, "Trivia", "")
	if err != nil {
		t.Fatalf("create quiz set: %v", err)
	}
	game, err := store.CreateGame(ctx, set.ID)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	return game
}

func TestRegistrationResolveUnknownNicknameStaysJoining(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	game := newGame(t, store)

	reg := app.NewRegistration(store, game.ID)
	existing, err := reg.Resolve(ctx, "alex")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if existing != nil {
		t.Fatalf("expected no existing participant, got %+v", existing)
	}
	if reg.State() != app.StateJoining {
		t.Fatalf("expected joining state, got %v", reg.State())
	}
}

func TestRegistrationSubmitThenRejoin(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	game := newGame(t, store)

	reg := app.NewRegistration(store, game.ID)
	created, err := reg.Submit(ctx, "alex")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if reg.State() != app.StateRegistered {
		t.Fatalf("expected registered state, got %v", reg.State())
	}

	// A fresh client offering the same nickname rejoins the existing row.
	rejoin := app.NewRegistration(store, game.ID)
	existing, err := rejoin.Resolve(ctx, "alex")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if existing == nil || existing.ID != created.ID {
		t.Fatalf("expected rejoin to return the created row, got %+v", existing)
	}

	participants, _ := store.ListParticipants(ctx, game.ID)
	if len(participants) != 1 {
		t.Fatalf("expected a single participant row, got %d", len(participants))
	}
}

func TestRegistrationSubmitIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	game := newGame(t, store)

	reg := app.NewRegistration(store, game.ID)
	first, err := reg.Submit(ctx, "alex")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	second, err := reg.Submit(ctx, "alex")
	if err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected same participant, got %s and %s", first.ID, second.ID)
	}
}

func TestRegistrationConflictReturnsToJoining(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	game := newGame(t, store)

	if _, err := store.CreateParticipant(ctx, game.ID, "alex"); err != nil {
		t.Fatalf("seed participant: %v", err)
	}

	// Simulate the losing side of a race: the check sees no row, then the
	// insert collides.
	reg := app.NewRegistration(&conflictStore{Store: store}, game.ID)
	_, err := reg.Submit(ctx, "alex")
	if !app.IsConflict(err) {
		t.Fatalf("expected nickname conflict, got %v", err)
	}
	if reg.State() != app.StateJoining {
		t.Fatalf("expected joining state after conflict, got %v", reg.State())
	}

	// The client picks another nickname and resubmits.
	if _, err := reg.Submit(ctx, "alex2"); err != nil {
		t.Fatalf("resubmit with new nickname: %v", err)
	}
	if reg.State() != app.StateRegistered {
		t.Fatalf("expected registered state, got %v", reg.State())
	}
}

func TestRegistrationRejectsInvalidNickname(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	game := newGame(t, store)

	reg := app.NewRegistration(store, game.ID)
	if _, err := reg.Submit(ctx, ""); !errors.Is(err, domain.ErrNicknameInvalid) {
		t.Fatalf("expected invalid nickname error, got %v", err)
	}
	if _, err := reg.Submit(ctx, "this nickname is far too long"); !errors.Is(err, domain.ErrNicknameInvalid) {
		t.Fatalf("expected invalid nickname error, got %v", err)
	}
}

// conflictStore makes the existence check miss so Submit reaches the insert
// and loses to the already-present row.
type conflictStore struct {
	app.Store
	misses int
}

func (s *conflictStore) FindParticipant(ctx context.Context, gameID, nickname string) (domain.Participant, bool, error) {
	if nickname == "alex" && s.misses == 0 {
		s.misses++
		return domain.Participant{}, false, nil
	}
	return s.Store.FindParticipant(ctx, gameID, nickname)
}
