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

func authorInput() app.AuthorInput {
	return app.AuthorInput{
		Name: "Capitals",
		Questions: []app.AuthorQuestion{
			{
				Body: "Capital of France?",
				Choices: []app.AuthorChoice{
					{Body: "Paris", IsCorrect: true},
					{Body: "Lyon"},
				},
			},
		},
	}
}

func TestCreateQuizSetAuthored(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	service := app.NewContentService(store, store)

	set, err := service.CreateQuizSet(ctx, authorInput())
	if err != nil {
		t.Fatalf("create quiz set: %v", err)
	}

	content, err := service.Content(ctx, set.ID)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	if len(content.Questions) != 1 || len(content.Questions[0].Choices) != 2 {
		t.Fatalf("unexpected content: %+v", content)
	}
}

func TestCreateQuizSetRequiresExactlyOneCorrect(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	service := app.NewContentService(store, store)

	input := authorInput()
	input.Questions[0].Choices[1].IsCorrect = true
	if _, err := service.CreateQuizSet(ctx, input); !errors.Is(err, domain.ErrCorrectChoiceRequired) {
		t.Fatalf("expected ErrCorrectChoiceRequired for two correct, got %v", err)
	}

	input = authorInput()
	input.Questions[0].Choices[0].IsCorrect = false
	if _, err := service.CreateQuizSet(ctx, input); !errors.Is(err, domain.ErrCorrectChoiceRequired) {
		t.Fatalf("expected ErrCorrectChoiceRequired for zero correct, got %v", err)
	}
}

func TestCreateQuizSetValidatesInput(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	service := app.NewContentService(store, store)

	input := authorInput()
	input.Name = ""
	if _, err := service.CreateQuizSet(ctx, input); err == nil {
		t.Fatal("expected validation error for empty name")
	}

	input = authorInput()
	input.Questions = nil
	if _, err := service.CreateQuizSet(ctx, input); err == nil {
		t.Fatal("expected validation error for no questions")
	}
}

func TestListQuizSetsNewestFirst(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	tick := 0
	store := memory.NewStoreWithClock(nil, func() time.Time {
		tick++
		return now.Add(time.Duration(tick) * time.Second)
	})
	service := app.NewContentService(store, store)

	older, _ := store.CreateQuizSet(ctx, "older", "")
	newer, _ := store.CreateQuizSet(ctx, "newer", "")

	sets, err := service.ListQuizSets(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(sets) != 2 || sets[0].ID != newer.ID || sets[1].ID != older.ID {
		t.Fatalf("expected newest first, got %+v", sets)
	}
}

func TestDeleteQuizSetCascades(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore(nil)
	service := app.NewContentService(store, store)

	set, err := service.CreateQuizSet(ctx, authorInput())
	if err != nil {
		t.Fatalf("create quiz set: %v", err)
	}
	if err := service.DeleteQuizSet(ctx, set.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := service.Content(ctx, set.ID); !errors.Is(err, domain.ErrQuizSetNotFound) {
		t.Fatalf("expected content gone, got %v", err)
	}
}
