package app

import (
	"context"

	"partyquiz-service/internal/domain"
)

// GameService owns the session lifecycle: creating games and driving their
// phase forward. Phase changes reach observers through the change feed, never
// through return values alone.
type GameService struct {
	store Store
	feed  ChangeFeed
}

func NewGameService(store Store, feed ChangeFeed) *GameService {
	return &GameService{store: store, feed: feed}
}

// CreateGame starts a session for a quiz set in the lobby phase.
func (s *GameService) CreateGame(ctx context.Context, quizSetID string) (domain.Game, error) {
	return s.store.CreateGame(ctx, quizSetID)
}

// Get returns the current session row.
func (s *GameService) Get(ctx context.Context, gameID string) (domain.Game, error) {
	return s.store.GetGame(ctx, gameID)
}

// JoinPath is the URL path participants open to join a game. Rendering it as
// a scannable code is the caller's concern.
func (s *GameService) JoinPath(gameID string) string {
	return "/game/" + gameID
}

// AdvancePhase moves a session to the target phase. The caller is assumed to
// be the authorized host. Targets earlier than the current phase are
// rejected; re-applying the current phase succeeds idempotently. A failed
// update leaves the session in its prior phase; there is no automatic retry.
func (s *GameService) AdvancePhase(ctx context.Context, gameID string, target domain.Phase) (domain.Game, error) {
	if !target.Valid() {
		return domain.Game{}, domain.ErrUnknownPhase
	}
	return s.store.UpdateGamePhase(ctx, gameID, target)
}

// WatchPhase subscribes to phase changes of one game. Each delivered game row
// is a full snapshot of the session.
func (s *GameService) WatchPhase(ctx context.Context, gameID string, fn func(domain.Game)) (Subscription, error) {
	return s.feed.Subscribe(ctx, TableGames, []ChangeKind{ChangeUpdate}, Filter{Column: "id", Equals: gameID},
		func(ev ChangeEvent) {
			if ev.Game != nil {
				fn(*ev.Game)
			}
		})
}

// WatchParticipants subscribes to participant registrations for one game and
// hands the callback the re-derived full participant list on every event.
// Re-reading instead of appending keeps the observer correct when events are
// replayed after a remount.
func (s *GameService) WatchParticipants(ctx context.Context, gameID string, fn func([]domain.Participant)) (Subscription, error) {
	return s.feed.Subscribe(ctx, TableParticipants, []ChangeKind{ChangeInsert}, Filter{Column: "game_id", Equals: gameID},
		func(ev ChangeEvent) {
			participants, err := s.store.ListParticipants(ctx, gameID)
			if err != nil {
				return
			}
			fn(participants)
		})
}
