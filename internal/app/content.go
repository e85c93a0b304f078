package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"

	"partyquiz-service/internal/domain"
)

// AuthorChoice is one choice in a manually authored question.
type AuthorChoice struct {
	Body      string `json:"body" validate:"required,max=75"`
	IsCorrect bool   `json:"isCorrect"`
}

// AuthorQuestion is one manually authored question with its choices.
type AuthorQuestion struct {
	Body     string         `json:"body" validate:"required,max=120"`
	ImageURL string         `json:"imageUrl"`
	Choices  []AuthorChoice `json:"choices" validate:"required,min=1,dive"`
}

// AuthorInput is a full quiz set authored in one request. Unlike the tolerant
// import path, authoring requires exactly one correct choice per question.
type AuthorInput struct {
	Name        string           `json:"name" validate:"required"`
	Description string           `json:"description"`
	Questions   []AuthorQuestion `json:"questions" validate:"required,min=1,dive"`
}

// ContentService covers quiz content reads and the manual authoring path.
// Full-content reads go through loader, which is either the store itself or a
// cache wrapping it.
type ContentService struct {
	store    Store
	loader   ContentLoader
	validate *validator.Validate
}

func NewContentService(store Store, loader ContentLoader) *ContentService {
	return &ContentService{store: store, loader: loader, validate: validator.New()}
}

// CreateQuizSet persists a manually authored quiz set. Creation is
// sequential and aborts on the first failure, matching the authoring flow's
// all-or-stop behavior; a failure mid-way leaves the set with the questions
// created so far.
func (s *ContentService) CreateQuizSet(ctx context.Context, input AuthorInput) (domain.QuizSet, error) {
	if err := s.validate.Struct(input); err != nil {
		return domain.QuizSet{}, fmt.Errorf("invalid quiz set: %w", err)
	}
	for _, q := range input.Questions {
		if countCorrect(q.Choices) != 1 {
			return domain.QuizSet{}, domain.ErrCorrectChoiceRequired
		}
	}

	set, err := s.store.CreateQuizSet(ctx, input.Name, input.Description)
	if err != nil {
		return domain.QuizSet{}, err
	}
	for order, q := range input.Questions {
		question, err := s.store.CreateQuestion(ctx, domain.Question{
			QuizSetID: set.ID,
			Body:      q.Body,
			Order:     order,
			ImageURL:  q.ImageURL,
		})
		if err != nil {
			return domain.QuizSet{}, err
		}
		for _, c := range q.Choices {
			if _, err := s.store.CreateChoice(ctx, domain.Choice{
				QuestionID: question.ID,
				Body:       c.Body,
				IsCorrect:  c.IsCorrect,
			}); err != nil {
				return domain.QuizSet{}, err
			}
		}
	}
	return set, nil
}

// ListQuizSets returns dashboard summaries, newest first.
func (s *ContentService) ListQuizSets(ctx context.Context) ([]domain.QuizSetSummary, error) {
	return s.store.ListQuizSets(ctx)
}

// DeleteQuizSet removes a set and its questions and choices. Games that
// reference the set keep running against content that no longer exists; that
// state is explicitly undefined and left to the host to notice.
func (s *ContentService) DeleteQuizSet(ctx context.Context, quizSetID string) error {
	if err := s.store.DeleteQuizSet(ctx, quizSetID); err != nil {
		return err
	}
	if inv, ok := s.loader.(interface{ Invalidate(context.Context, string) }); ok {
		inv.Invalidate(ctx, quizSetID)
	}
	return nil
}

// Content returns the full quiz content for a set, from the cache when one
// is configured.
func (s *ContentService) Content(ctx context.Context, quizSetID string) (domain.QuizContent, error) {
	return s.loader.LoadContent(ctx, quizSetID)
}

func countCorrect(choices []AuthorChoice) int {
	n := 0
	for _, c := range choices {
		if c.IsCorrect {
			n++
		}
	}
	return n
}
