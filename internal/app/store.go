package app

import (
	"context"

	"partyquiz-service/internal/domain"
)

// Store is the repository contract the engine runs against. Implementations
// must enforce the uniqueness of (game_id, nickname) atomically: the
// registration flow performs check-then-insert with no client-side locking
// and relies on the store to reject the losing concurrent insert. No
// operation retries internally; failures come back as *domain.StoreError or
// one of the domain sentinels and callers decide what to do.
type Store interface {
	CreateQuizSet(ctx context.Context, name, description string) (domain.QuizSet, error)
	CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error)
	CreateChoice(ctx context.Context, c domain.Choice) (domain.Choice, error)
	// ListQuizSets returns summaries ordered by creation time, newest first.
	ListQuizSets(ctx context.Context) ([]domain.QuizSetSummary, error)
	// DeleteQuizSet removes the set and, by cascade, its questions and
	// choices. Games referencing the set are left untouched; their content
	// reads will fail with ErrQuizSetNotFound from then on.
	DeleteQuizSet(ctx context.Context, quizSetID string) error

	// CreateGame starts a session in the lobby phase. The quiz set must exist.
	CreateGame(ctx context.Context, quizSetID string) (domain.Game, error)
	GetGame(ctx context.Context, gameID string) (domain.Game, error)
	// UpdateGamePhase applies a monotone phase transition. Setting the phase
	// the game is already in is an idempotent success; a backwards target
	// fails with ErrPhaseRegression and leaves the row untouched.
	UpdateGamePhase(ctx context.Context, gameID string, phase domain.Phase) (domain.Game, error)

	// CreateParticipant admits a nickname into a game, failing with
	// ErrNicknameTaken when the (game, nickname) pair exists.
	CreateParticipant(ctx context.Context, gameID, nickname string) (domain.Participant, error)
	// FindParticipant looks up a participant by (game, nickname); the second
	// result reports whether one exists.
	FindParticipant(ctx context.Context, gameID, nickname string) (domain.Participant, bool, error)
	// ListParticipants returns all participants of a game ordered by
	// registration time.
	ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error)
}

// ContentLoader is the read-side loader for full quiz content. Store
// implementations provide it; caches wrap it.
type ContentLoader interface {
	LoadContent(ctx context.Context, quizSetID string) (domain.QuizContent, error)
}
