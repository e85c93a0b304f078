package app

import (
	"context"

	"partyquiz-service/internal/domain"
)

// Tables that emit change events.
const (
	TableGames        = "games"
	TableParticipants = "participants"
)

// ChangeKind is the row operation that produced an event.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
)

// ChangeEvent is a typed row-level change notification. Exactly one of Game
// or Participant is set, matching Table. Observers must treat events as
// idempotent snapshot triggers: a remount can replay events that were already
// delivered, so re-derive local state from the payload instead of merging
// deltas.
type ChangeEvent struct {
	Table       string              `json:"table"`
	Kind        ChangeKind          `json:"kind"`
	Game        *domain.Game        `json:"game,omitempty"`
	Participant *domain.Participant `json:"participant,omitempty"`
}

// Filter restricts a subscription to rows whose column equals a value,
// e.g. {Column: "game_id", Equals: gameID}.
type Filter struct {
	Column string
	Equals string
}

// Matches reports whether the event's row satisfies the filter.
func (f Filter) Matches(ev ChangeEvent) bool {
	if f.Column == "" {
		return true
	}
	switch {
	case ev.Game != nil:
		if f.Column == "id" {
			return ev.Game.ID == f.Equals
		}
	case ev.Participant != nil:
		switch f.Column {
		case "id":
			return ev.Participant.ID == f.Equals
		case "game_id":
			return ev.Participant.GameID == f.Equals
		}
	}
	return false
}

// Subscription is an open change feed registration. Close releases it; a
// subscription left open past its observer's lifetime keeps delivering and
// leaks.
type Subscription interface {
	Close()
}

// ChangeFeed delivers committed row changes matching a table, a set of kinds
// and a filter, in commit order within the subscription, at least once, to a
// single callback. Delivery is asynchronous relative to the write that caused
// it; the writer's own change echoes back too.
type ChangeFeed interface {
	Subscribe(ctx context.Context, table string, kinds []ChangeKind, filter Filter, fn func(ChangeEvent)) (Subscription, error)
}

// Sink receives events from writers for dispatch to subscribers. Stores that
// do not get change notifications from their storage layer publish here after
// each commit.
type Sink interface {
	Publish(ctx context.Context, ev ChangeEvent) error
}
