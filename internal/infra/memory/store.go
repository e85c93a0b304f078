package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
)

// Store is the in-memory repository. It owns the shared-resource arbitration
// the protocols depend on: the unique (game_id, nickname) index and the
// single-writer visibility of the game phase field, both enforced under one
// mutex. Committed changes to games and participants are published to the
// sink, if one is set, while the mutex is still held: sink order is commit
// order, which the feed needs to deliver phase changes non-decreasing. Sinks
// must return promptly; the bus drops on a slow consumer instead of blocking.
type Store struct {
	mu    sync.Mutex
	clock func() time.Time
	sink  app.Sink

	quizSets     map[string]domain.QuizSet
	questions    map[string]domain.Question
	choices      map[string]domain.Choice
	games        map[string]domain.Game
	participants map[string]domain.Participant
	// nicknames is the unique index: gameID -> nickname -> participant id.
	nicknames map[string]map[string]string
}

func NewStore(sink app.Sink) *Store {
	return &Store{
		clock:        time.Now,
		sink:         sink,
		quizSets:     make(map[string]domain.QuizSet),
		questions:    make(map[string]domain.Question),
		choices:      make(map[string]domain.Choice),
		games:        make(map[string]domain.Game),
		participants: make(map[string]domain.Participant),
		nicknames:    make(map[string]map[string]string),
	}
}

// NewStoreWithClock is test-only for deterministic timestamps.
func NewStoreWithClock(sink app.Sink, now func() time.Time) *Store {
	s := NewStore(sink)
	s.clock = now
	return s
}

func (s *Store) CreateQuizSet(_ context.Context, name, description string) (domain.QuizSet, error) {
	if name == "" {
		return domain.QuizSet{}, &domain.StoreError{Op: "create quiz set", Err: domain.ErrNameRequired}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set := domain.QuizSet{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		CreatedAt:   s.clock(),
	}
	s.quizSets[set.ID] = set
	return set, nil
}

func (s *Store) CreateQuestion(_ context.Context, q domain.Question) (domain.Question, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizSets[q.QuizSetID]; !ok {
		return domain.Question{}, &domain.StoreError{Op: "create question", Err: domain.ErrQuizSetNotFound}
	}
	q.ID = uuid.NewString()
	s.questions[q.ID] = q
	return q, nil
}

func (s *Store) CreateChoice(_ context.Context, c domain.Choice) (domain.Choice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.questions[c.QuestionID]; !ok {
		return domain.Choice{}, &domain.StoreError{Op: "create choice", Err: domain.ErrQuestionNotFound}
	}
	c.ID = uuid.NewString()
	s.choices[c.ID] = c
	return c, nil
}

func (s *Store) ListQuizSets(_ context.Context) ([]domain.QuizSetSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	summaries := make([]domain.QuizSetSummary, 0, len(s.quizSets))
	for _, set := range s.quizSets {
		summary := domain.QuizSetSummary{QuizSet: set}
		for _, q := range s.questions {
			if q.QuizSetID == set.ID {
				summary.QuestionCount++
			}
		}
		summaries = append(summaries, summary)
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
	})
	return summaries, nil
}

// DeleteQuizSet cascades to questions and choices, mirroring the relational
// ON DELETE CASCADE. Games referencing the set are not touched.
func (s *Store) DeleteQuizSet(_ context.Context, quizSetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizSets[quizSetID]; !ok {
		return &domain.StoreError{Op: "delete quiz set", Err: domain.ErrQuizSetNotFound}
	}
	delete(s.quizSets, quizSetID)
	for qid, q := range s.questions {
		if q.QuizSetID != quizSetID {
			continue
		}
		delete(s.questions, qid)
		for cid, c := range s.choices {
			if c.QuestionID == qid {
				delete(s.choices, cid)
			}
		}
	}
	return nil
}

func (s *Store) LoadContent(_ context.Context, quizSetID string) (domain.QuizContent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, ok := s.quizSets[quizSetID]
	if !ok {
		return domain.QuizContent{}, domain.ErrQuizSetNotFound
	}
	content := domain.QuizContent{Set: set}
	for _, q := range s.questions {
		if q.QuizSetID != quizSetID {
			continue
		}
		cq := domain.ContentQuestion{Question: q}
		for _, c := range s.choices {
			if c.QuestionID == q.ID {
				cq.Choices = append(cq.Choices, c)
			}
		}
		content.Questions = append(content.Questions, cq)
	}
	sort.Slice(content.Questions, func(i, j int) bool {
		return content.Questions[i].Order < content.Questions[j].Order
	})
	return content, nil
}

func (s *Store) CreateGame(ctx context.Context, quizSetID string) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.quizSets[quizSetID]; !ok {
		return domain.Game{}, &domain.StoreError{Op: "create game", Err: domain.ErrQuizSetNotFound}
	}
	game := domain.Game{
		ID:        uuid.NewString(),
		QuizSetID: quizSetID,
		Phase:     domain.PhaseLobby,
		CreatedAt: s.clock(),
	}
	s.games[game.ID] = game
	s.publish(ctx, app.ChangeEvent{Table: app.TableGames, Kind: app.ChangeInsert, Game: &game})
	return game, nil
}

func (s *Store) GetGame(_ context.Context, gameID string) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, domain.ErrGameNotFound
	}
	return game, nil
}

func (s *Store) UpdateGamePhase(ctx context.Context, gameID string, phase domain.Phase) (domain.Game, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[gameID]
	if !ok {
		return domain.Game{}, &domain.StoreError{Op: "update game phase", Err: domain.ErrGameNotFound}
	}
	if game.Phase == phase {
		return game, nil
	}
	if phase.Before(game.Phase) {
		return domain.Game{}, &domain.StoreError{Op: "update game phase", Err: domain.ErrPhaseRegression}
	}
	game.Phase = phase
	s.games[gameID] = game
	s.publish(ctx, app.ChangeEvent{Table: app.TableGames, Kind: app.ChangeUpdate, Game: &game})
	return game, nil
}

func (s *Store) CreateParticipant(ctx context.Context, gameID, nickname string) (domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.games[gameID]; !ok {
		return domain.Participant{}, &domain.StoreError{Op: "create participant", Err: domain.ErrGameNotFound}
	}
	byNickname := s.nicknames[gameID]
	if byNickname == nil {
		byNickname = make(map[string]string)
		s.nicknames[gameID] = byNickname
	}
	if _, taken := byNickname[nickname]; taken {
		return domain.Participant{}, &domain.StoreError{Op: "create participant", Err: domain.ErrNicknameTaken}
	}
	participant := domain.Participant{
		ID:        uuid.NewString(),
		GameID:    gameID,
		Nickname:  nickname,
		CreatedAt: s.clock(),
	}
	byNickname[nickname] = participant.ID
	s.participants[participant.ID] = participant
	s.publish(ctx, app.ChangeEvent{Table: app.TableParticipants, Kind: app.ChangeInsert, Participant: &participant})
	return participant, nil
}

func (s *Store) FindParticipant(_ context.Context, gameID, nickname string) (domain.Participant, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.nicknames[gameID][nickname]
	if !ok {
		return domain.Participant{}, false, nil
	}
	return s.participants[id], true, nil
}

func (s *Store) ListParticipants(_ context.Context, gameID string) ([]domain.Participant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Participant
	for _, p := range s.participants {
		if p.GameID == gameID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].Nickname < out[j].Nickname
	})
	return out, nil
}

func (s *Store) publish(ctx context.Context, ev app.ChangeEvent) {
	if s.sink == nil {
		return
	}
	_ = s.sink.Publish(ctx, ev)
}
