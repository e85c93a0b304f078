package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
	"partyquiz-service/internal/infra/memory"
)

func newTestEngine(t *testing.T) (*memory.Store, *app.GameService, domain.Game) {
	t.Helper()
	bus := memory.NewBus()
	store := memory.NewStore(bus)
	service := app.NewGameService(store, bus)
	game := newGame(t, store)
	return store, service, game
}

func TestCreateGameStartsInLobby(t *testing.T) {
	ctx := context.Background()
	bus := memory.NewBus()
	store := memory.NewStore(bus)
	service := app.NewGameService(store, bus)

	set, err := store.CreateQuizSet(ctx, "Trivia", "")
	if err != nil {
		t.Fatalf("create quiz set: %v", err)
	}
	game, err := service.CreateGame(ctx, set.ID)
	if err != nil {
		t.Fatalf("create game: %v", err)
	}
	if game.Phase != domain.PhaseLobby {
		t.Fatalf("expected lobby phase, got %s", game.Phase)
	}
	if service.JoinPath(game.ID) != "/game/"+game.ID {
		t.Fatalf("unexpected join path %q", service.JoinPath(game.ID))
	}
}

func TestCreateGameRequiresQuizSet(t *testing.T) {
	ctx := context.Background()
	_, service, _ := newTestEngine(t)

	_, err := service.CreateGame(ctx, "no-such-set")
	if !errors.Is(err, domain.ErrQuizSetNotFound) {
		t.Fatalf("expected ErrQuizSetNotFound, got %v", err)
	}
}

func TestAdvancePhasePropagatesToSubscribers(t *testing.T) {
	ctx := context.Background()
	_, service, game := newTestEngine(t)

	phases := make(chan domain.Phase, 4)
	sub, err := service.WatchPhase(ctx, game.ID, func(g domain.Game) {
		phases <- g.Phase
	})
	if err != nil {
		t.Fatalf("watch phase: %v", err)
	}
	defer sub.Close()

	updated, err := service.AdvancePhase(ctx, game.ID, domain.PhaseQuiz)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if updated.Phase != domain.PhaseQuiz {
		t.Fatalf("expected quiz phase, got %s", updated.Phase)
	}

	select {
	case phase := <-phases:
		if phase != domain.PhaseQuiz {
			t.Fatalf("expected delivered phase quiz, got %s", phase)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no phase event delivered")
	}
}

func TestAdvancePhaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	_, service, game := newTestEngine(t)

	if _, err := service.AdvancePhase(ctx, game.ID, domain.PhaseQuiz); err != nil {
		t.Fatalf("advance: %v", err)
	}
	again, err := service.AdvancePhase(ctx, game.ID, domain.PhaseQuiz)
	if err != nil {
		t.Fatalf("re-applying the current phase should succeed, got %v", err)
	}
	if again.Phase != domain.PhaseQuiz {
		t.Fatalf("expected quiz phase, got %s", again.Phase)
	}
}

func TestAdvancePhaseRejectsRegression(t *testing.T) {
	ctx := context.Background()
	_, service, game := newTestEngine(t)

	if _, err := service.AdvancePhase(ctx, game.ID, domain.PhaseResults); err != nil {
		t.Fatalf("advance: %v", err)
	}
	_, err := service.AdvancePhase(ctx, game.ID, domain.PhaseLobby)
	if !errors.Is(err, domain.ErrPhaseRegression) {
		t.Fatalf("expected ErrPhaseRegression, got %v", err)
	}

	current, err := service.Get(ctx, game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if current.Phase != domain.PhaseResults {
		t.Fatalf("failed transition must leave phase untouched, got %s", current.Phase)
	}
}

func TestAdvancePhaseRejectsUnknownPhase(t *testing.T) {
	ctx := context.Background()
	_, service, game := newTestEngine(t)

	_, err := service.AdvancePhase(ctx, game.ID, domain.Phase("intermission"))
	if !errors.Is(err, domain.ErrUnknownPhase) {
		t.Fatalf("expected ErrUnknownPhase, got %v", err)
	}
}

func TestWatchParticipantsDeliversFullSnapshots(t *testing.T) {
	ctx := context.Background()
	store, service, game := newTestEngine(t)

	lists := make(chan []domain.Participant, 4)
	sub, err := service.WatchParticipants(ctx, game.ID, func(list []domain.Participant) {
		lists <- list
	})
	if err != nil {
		t.Fatalf("watch participants: %v", err)
	}
	defer sub.Close()

	if _, err := store.CreateParticipant(ctx, game.ID, "alex"); err != nil {
		t.Fatalf("create participant: %v", err)
	}
	if _, err := store.CreateParticipant(ctx, game.ID, "sam"); err != nil {
		t.Fatalf("create participant: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		select {
		case list := <-lists:
			if len(list) == 2 {
				return
			}
		case <-deadline:
			t.Fatal("never observed both participants")
		}
	}
}

func TestWatchPhaseIgnoresOtherGames(t *testing.T) {
	ctx := context.Background()
	store, service, game := newTestEngine(t)

	other := newGame(t, store)

	phases := make(chan domain.Phase, 4)
	sub, err := service.WatchPhase(ctx, game.ID, func(g domain.Game) {
		phases <- g.Phase
	})
	if err != nil {
		t.Fatalf("watch phase: %v", err)
	}
	defer sub.Close()

	if _, err := service.AdvancePhase(ctx, other.ID, domain.PhaseQuiz); err != nil {
		t.Fatalf("advance other game: %v", err)
	}

	select {
	case phase := <-phases:
		t.Fatalf("unexpected event for other game: %s", phase)
	case <-time.After(200 * time.Millisecond):
	}
}
