package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/domain"
	"partyquiz-service/internal/infra/memory"
)

// notifyChannel is the LISTEN/NOTIFY channel the row triggers publish to
// (see the change_triggers migration).
const notifyChannel = "row_changes"

// Feed turns Postgres NOTIFY payloads into typed change events. The triggers
// fire after commit, so events arrive in commit order per connection;
// subscribers get them through a local bus. Writers do not publish anything
// themselves — the storage layer is the source of truth for what changed.
type Feed struct {
	pool  *pgxpool.Pool
	local *memory.Bus
}

func NewFeed(pool *pgxpool.Pool) *Feed {
	return &Feed{pool: pool, local: memory.NewBus()}
}

// Run listens for notifications until ctx is done. A dropped connection is
// re-acquired after a short pause; notifications sent while disconnected are
// lost, which subscribers tolerate by re-deriving state from later events.
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.listen(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("change feed: listen failed, reconnecting: %v", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
	}
}

func (f *Feed) listen(ctx context.Context) error {
	poolConn, err := f.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen conn: %w", err)
	}
	defer poolConn.Release()

	conn := poolConn.Conn()
	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen %s: %w", notifyChannel, err)
	}

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		ev, err := decodeNotification([]byte(notification.Payload))
		if err != nil {
			log.Printf("change feed: drop malformed notification: %v", err)
			continue
		}
		_ = f.local.Publish(ctx, ev)
	}
}

// Subscribe registers a local observer for events flowing through Run.
func (f *Feed) Subscribe(ctx context.Context, table string, kinds []app.ChangeKind, filter app.Filter, fn func(app.ChangeEvent)) (app.Subscription, error) {
	return f.local.Subscribe(ctx, table, kinds, filter, fn)
}

// notification is the trigger payload: the table, the lowercased operation
// and the new row as column-name JSON.
type notification struct {
	Table string          `json:"table"`
	Kind  string          `json:"kind"`
	Row   json.RawMessage `json:"row"`
}

type gameRow struct {
	ID        string    `json:"id"`
	QuizSetID string    `json:"quiz_set_id"`
	Phase     string    `json:"phase"`
	CreatedAt time.Time `json:"created_at"`
}

type participantRow struct {
	ID        string    `json:"id"`
	GameID    string    `json:"game_id"`
	Nickname  string    `json:"nickname"`
	CreatedAt time.Time `json:"created_at"`
}

func decodeNotification(payload []byte) (app.ChangeEvent, error) {
	var n notification
	if err := json.Unmarshal(payload, &n); err != nil {
		return app.ChangeEvent{}, fmt.Errorf("unmarshal notification: %w", err)
	}
	ev := app.ChangeEvent{Table: n.Table, Kind: app.ChangeKind(n.Kind)}
	switch n.Table {
	case app.TableGames:
		var row gameRow
		if err := json.Unmarshal(n.Row, &row); err != nil {
			return app.ChangeEvent{}, fmt.Errorf("unmarshal game row: %w", err)
		}
		ev.Game = &domain.Game{
			ID:        row.ID,
			QuizSetID: row.QuizSetID,
			Phase:     domain.Phase(row.Phase),
			CreatedAt: row.CreatedAt,
		}
	case app.TableParticipants:
		var row participantRow
		if err := json.Unmarshal(n.Row, &row); err != nil {
			return app.ChangeEvent{}, fmt.Errorf("unmarshal participant row: %w", err)
		}
		ev.Participant = &domain.Participant{
			ID:        row.ID,
			GameID:    row.GameID,
			Nickname:  row.Nickname,
			CreatedAt: row.CreatedAt,
		}
	default:
		return app.ChangeEvent{}, fmt.Errorf("unknown table %q", n.Table)
	}
	return ev, nil
}
