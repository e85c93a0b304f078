package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/driver/pgdriver"

	"partyquiz-service/internal/domain"
)

// Store is the bun-backed repository. Uniqueness of (game_id, nickname) and
// referential integrity are enforced by the schema (see migrations); this
// layer translates the driver's constraint violations into domain failures.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) CreateQuizSet(ctx context.Context, name, description string) (domain.QuizSet, error) {
	if name == "" {
		return domain.QuizSet{}, &domain.StoreError{Op: "create quiz set", Err: domain.ErrNameRequired}
	}
	set := domain.QuizSet{Name: name, Description: description}
	if _, err := s.db.NewInsert().Model(&set).Returning("*").Exec(ctx); err != nil {
		return domain.QuizSet{}, wrap("create quiz set", err, nil, nil)
	}
	return set, nil
}

func (s *Store) CreateQuestion(ctx context.Context, q domain.Question) (domain.Question, error) {
	q.ID = ""
	if _, err := s.db.NewInsert().Model(&q).Returning("*").Exec(ctx); err != nil {
		return domain.Question{}, wrap("create question", err, nil, domain.ErrQuizSetNotFound)
	}
	return q, nil
}

func (s *Store) CreateChoice(ctx context.Context, c domain.Choice) (domain.Choice, error) {
	c.ID = ""
	if _, err := s.db.NewInsert().Model(&c).Returning("*").Exec(ctx); err != nil {
		return domain.Choice{}, wrap("create choice", err, nil, domain.ErrQuestionNotFound)
	}
	return c, nil
}

func (s *Store) ListQuizSets(ctx context.Context) ([]domain.QuizSetSummary, error) {
	var sets []domain.QuizSet
	if err := s.db.NewSelect().Model(&sets).Order("created_at DESC").Scan(ctx); err != nil {
		return nil, wrap("list quiz sets", err, nil, nil)
	}

	var counts []struct {
		QuizSetID string `bun:"quiz_set_id"`
		N         int    `bun:"n"`
	}
	err := s.db.NewSelect().
		Model((*domain.Question)(nil)).
		ColumnExpr("quiz_set_id, count(*) AS n").
		Group("quiz_set_id").
		Scan(ctx, &counts)
	if err != nil {
		return nil, wrap("count questions", err, nil, nil)
	}
	bySet := make(map[string]int, len(counts))
	for _, c := range counts {
		bySet[c.QuizSetID] = c.N
	}

	summaries := make([]domain.QuizSetSummary, 0, len(sets))
	for _, set := range sets {
		summaries = append(summaries, domain.QuizSetSummary{QuizSet: set, QuestionCount: bySet[set.ID]})
	}
	return summaries, nil
}

func (s *Store) DeleteQuizSet(ctx context.Context, quizSetID string) error {
	res, err := s.db.NewDelete().
		Model((*domain.QuizSet)(nil)).
		Where("id = ?", quizSetID).
		Exec(ctx)
	if err != nil {
		return wrap("delete quiz set", err, nil, nil)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &domain.StoreError{Op: "delete quiz set", Err: domain.ErrQuizSetNotFound}
	}
	return nil
}

func (s *Store) LoadContent(ctx context.Context, quizSetID string) (domain.QuizContent, error) {
	var set domain.QuizSet
	err := s.db.NewSelect().Model(&set).Where("id = ?", quizSetID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.QuizContent{}, domain.ErrQuizSetNotFound
	}
	if err != nil {
		return domain.QuizContent{}, wrap("load quiz set", err, nil, nil)
	}

	var questions []domain.Question
	err = s.db.NewSelect().Model(&questions).
		Where("quiz_set_id = ?", quizSetID).
		OrderExpr(`"order" ASC`).
		Scan(ctx)
	if err != nil {
		return domain.QuizContent{}, wrap("load questions", err, nil, nil)
	}

	content := domain.QuizContent{Set: set}
	if len(questions) == 0 {
		return content, nil
	}

	ids := make([]string, 0, len(questions))
	for _, q := range questions {
		ids = append(ids, q.ID)
	}
	var choices []domain.Choice
	err = s.db.NewSelect().Model(&choices).
		Where("question_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return domain.QuizContent{}, wrap("load choices", err, nil, nil)
	}
	byQuestion := make(map[string][]domain.Choice, len(questions))
	for _, c := range choices {
		byQuestion[c.QuestionID] = append(byQuestion[c.QuestionID], c)
	}
	for _, q := range questions {
		content.Questions = append(content.Questions, domain.ContentQuestion{
			Question: q,
			Choices:  byQuestion[q.ID],
		})
	}
	return content, nil
}

func (s *Store) CreateGame(ctx context.Context, quizSetID string) (domain.Game, error) {
	game := domain.Game{QuizSetID: quizSetID, Phase: domain.PhaseLobby}
	if _, err := s.db.NewInsert().Model(&game).Returning("*").Exec(ctx); err != nil {
		return domain.Game{}, wrap("create game", err, nil, domain.ErrQuizSetNotFound)
	}
	return game, nil
}

func (s *Store) GetGame(ctx context.Context, gameID string) (domain.Game, error) {
	var game domain.Game
	err := s.db.NewSelect().Model(&game).Where("id = ?", gameID).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Game{}, domain.ErrGameNotFound
	}
	if err != nil {
		return domain.Game{}, wrap("get game", err, nil, nil)
	}
	return game, nil
}

// UpdateGamePhase applies the transition with an optimistic condition on the
// current phase so two hosts racing cannot interleave a regression. A
// concurrent change surfaces as a retryable conflict unless it already
// carried the game to (idempotent) or past (regression) the target.
func (s *Store) UpdateGamePhase(ctx context.Context, gameID string, phase domain.Phase) (domain.Game, error) {
	const op = "update game phase"
	game, err := s.GetGame(ctx, gameID)
	if err != nil {
		return domain.Game{}, err
	}
	if game.Phase == phase {
		return game, nil
	}
	if phase.Before(game.Phase) {
		return domain.Game{}, &domain.StoreError{Op: op, Err: domain.ErrPhaseRegression}
	}

	res, err := s.db.NewUpdate().
		Model((*domain.Game)(nil)).
		Set("phase = ?", phase).
		Where("id = ?", gameID).
		Where("phase = ?", game.Phase).
		Exec(ctx)
	if err != nil {
		return domain.Game{}, wrap(op, err, nil, nil)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		current, err := s.GetGame(ctx, gameID)
		if err != nil {
			return domain.Game{}, err
		}
		if current.Phase == phase {
			return current, nil
		}
		if phase.Before(current.Phase) {
			return domain.Game{}, &domain.StoreError{Op: op, Err: domain.ErrPhaseRegression}
		}
		return domain.Game{}, &domain.StoreError{Op: op, Retryable: true, Err: fmt.Errorf("phase changed concurrently from %s", game.Phase)}
	}

	game.Phase = phase
	return game, nil
}

func (s *Store) CreateParticipant(ctx context.Context, gameID, nickname string) (domain.Participant, error) {
	participant := domain.Participant{GameID: gameID, Nickname: nickname}
	if _, err := s.db.NewInsert().Model(&participant).Returning("*").Exec(ctx); err != nil {
		return domain.Participant{}, wrap("create participant", err, domain.ErrNicknameTaken, domain.ErrGameNotFound)
	}
	return participant, nil
}

func (s *Store) FindParticipant(ctx context.Context, gameID, nickname string) (domain.Participant, bool, error) {
	var participant domain.Participant
	err := s.db.NewSelect().Model(&participant).
		Where("game_id = ?", gameID).
		Where("nickname = ?", nickname).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, wrap("find participant", err, nil, nil)
	}
	return participant, true, nil
}

func (s *Store) ListParticipants(ctx context.Context, gameID string) ([]domain.Participant, error) {
	var participants []domain.Participant
	err := s.db.NewSelect().Model(&participants).
		Where("game_id = ?", gameID).
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, wrap("list participants", err, nil, nil)
	}
	return participants, nil
}

// Postgres error codes this layer recognizes.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// wrap classifies a driver error. Constraint violations map to the provided
// domain sentinels and are not retryable; anything else (connection loss,
// backend unavailable) is retryable.
func wrap(op string, err error, onUnique, onFK error) error {
	var pgErr pgdriver.Error
	if errors.As(err, &pgErr) {
		switch pgErr.Field('C') {
		case codeUniqueViolation:
			if onUnique != nil {
				return &domain.StoreError{Op: op, Err: onUnique}
			}
			return &domain.StoreError{Op: op, Err: err}
		case codeForeignKeyViolation:
			if onFK != nil {
				return &domain.StoreError{Op: op, Err: onFK}
			}
			return &domain.StoreError{Op: op, Err: err}
		}
		if pgErr.IntegrityViolation() {
			return &domain.StoreError{Op: op, Err: err}
		}
	}
	return &domain.StoreError{Op: op, Retryable: true, Err: err}
}
