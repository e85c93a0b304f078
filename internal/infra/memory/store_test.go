package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
)

func seedGame(t *testing.T, store *Store) domain.Game {
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

func TestConcurrentRegistrationAdmitsExactlyOne(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	game := seedGame(t, store)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.CreateParticipant(ctx, game.ID, "alex")
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var wins, conflicts int
	for err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, domain.ErrNicknameTaken):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || conflicts != attempts-1 {
		t.Fatalf("expected exactly one winner, got %d wins and %d conflicts", wins, conflicts)
	}

	participants, err := store.ListParticipants(ctx, game.ID)
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(participants) != 1 {
		t.Fatalf("expected a single row for the nickname, got %d", len(participants))
	}
}

func TestCreateParticipantRequiresGame(t *testing.T) {
	store := NewStore(nil)
	_, err := store.CreateParticipant(context.Background(), "no-such-game", "alex")
	if !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestConstraintFailuresAreNotRetryable(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	game := seedGame(t, store)

	if _, err := store.CreateParticipant(ctx, game.ID, "alex"); err != nil {
		t.Fatalf("create participant: %v", err)
	}
	_, err := store.CreateParticipant(ctx, game.ID, "alex")
	if err == nil {
		t.Fatal("expected conflict")
	}
	if domain.Retryable(err) {
		t.Fatalf("constraint violation must not be retryable: %v", err)
	}
}

func TestDeleteQuizSetCascadesToQuestionsAndChoices(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	set, err := store.CreateQuizSet(ctx, "Trivia", "")
	if err != nil {
		t.Fatalf("create quiz set: %v", err)
	}
	question, err := store.CreateQuestion(ctx, domain.Question{QuizSetID: set.ID, Body: "Q1"})
	if err != nil {
		t.Fatalf("create question: %v", err)
	}
	if _, err := store.CreateChoice(ctx, domain.Choice{QuestionID: question.ID, Body: "A", IsCorrect: true}); err != nil {
		t.Fatalf("create choice: %v", err)
	}

	if err := store.DeleteQuizSet(ctx, set.ID); err != nil {
		t.Fatalf("delete quiz set: %v", err)
	}
	if _, err := store.LoadContent(ctx, set.ID); !errors.Is(err, domain.ErrQuizSetNotFound) {
		t.Fatalf("expected set gone, got %v", err)
	}
	// The question is gone too: creating a choice against it must fail.
	if _, err := store.CreateChoice(ctx, domain.Choice{QuestionID: question.ID, Body: "B"}); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected cascaded question deletion, got %v", err)
	}
}

func TestUpdateGamePhaseMonotone(t *testing.T) {
	ctx := context.Background()
	store := NewStore(nil)
	game := seedGame(t, store)

	if _, err := store.UpdateGamePhase(ctx, game.ID, domain.PhaseQuiz); err != nil {
		t.Fatalf("advance to quiz: %v", err)
	}
	if _, err := store.UpdateGamePhase(ctx, game.ID, domain.PhaseLobby); !errors.Is(err, domain.ErrPhaseRegression) {
		t.Fatalf("expected regression rejection, got %v", err)
	}
	current, err := store.GetGame(ctx, game.ID)
	if err != nil {
		t.Fatalf("get game: %v", err)
	}
	if current.Phase != domain.PhaseQuiz {
		t.Fatalf("expected phase unchanged after rejected transition, got %s", current.Phase)
	}
}

func TestPhaseEventsObservedInCommitOrder(t *testing.T) {
	ctx := context.Background()
	bus := NewBus()
	store := NewStore(bus)
	set, err := store.CreateQuizSet(ctx, "Trivia", "")
	if err != nil {
		t.Fatalf("create quiz set: %v", err)
	}

	for i := 0; i < 200; i++ {
		game, err := store.CreateGame(ctx, set.ID)
		if err != nil {
			t.Fatalf("create game: %v", err)
		}
		events := make(chan domain.Phase, 4)
		sub, err := bus.Subscribe(ctx, app.TableGames, []app.ChangeKind{app.ChangeUpdate},
			app.Filter{Column: "id", Equals: game.ID},
			func(ev app.ChangeEvent) { events <- ev.Game.Phase })
		if err != nil {
			t.Fatalf("subscribe: %v", err)
		}

		// Two hosts race forward transitions. The quiz update commits an
		// event unless the results update got there first and it fails as a
		// regression; the results update always commits one.
		var wg sync.WaitGroup
		var quizErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, quizErr = store.UpdateGamePhase(ctx, game.ID, domain.PhaseQuiz)
		}()
		go func() {
			defer wg.Done()
			if _, err := store.UpdateGamePhase(ctx, game.ID, domain.PhaseResults); err != nil {
				t.Errorf("advance to results: %v", err)
			}
		}()
		wg.Wait()

		committed := 2
		if quizErr != nil {
			committed = 1
		}
		last := -1
		for n := 0; n < committed; n++ {
			select {
			case phase := <-events:
				if rank := phase.Rank(); rank < last {
					t.Fatalf("observed phase %s after rank %d", phase, last)
				} else {
					last = rank
				}
			case <-time.After(2 * time.Second):
				t.Fatalf("missing event %d of %d", n+1, committed)
			}
		}
		sub.Close()
	}
}
