package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"

	"partyquiz-service/internal/app"
	"partyquiz-service/internal/infra/memory"
)

// channelPrefix namespaces change events per table: changes:games,
// changes:participants.
const channelPrefix = "changes:"

// Feed fans row-change events across service instances over Redis pub/sub.
// Writers publish here instead of the in-process bus; Run re-ingests every
// event published on the table channels (this instance's included) into a
// local bus that serves subscriptions. Within one subscription events arrive
// in Redis publish order; across instances no order is promised.
type Feed struct {
	client *redis.Client
	local  *memory.Bus
}

func NewFeed(client *redis.Client) *Feed {
	return &Feed{client: client, local: memory.NewBus()}
}

// Publish sends the event to the table's channel.
func (f *Feed) Publish(ctx context.Context, ev app.ChangeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal change event: %w", err)
	}
	if err := f.client.Publish(ctx, channelPrefix+ev.Table, payload).Err(); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	return nil
}

// Run consumes the table channels until ctx is done, dispatching decoded
// events to local subscriptions. Malformed payloads are logged and dropped.
func (f *Feed) Run(ctx context.Context) error {
	pubsub := f.client.Subscribe(ctx, channelPrefix+app.TableGames, channelPrefix+app.TableParticipants)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var ev app.ChangeEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				log.Printf("change feed: drop malformed event on %s: %v", msg.Channel, err)
				continue
			}
			_ = f.local.Publish(ctx, ev)
		}
	}
}

// Subscribe registers a local observer for events flowing through Run.
func (f *Feed) Subscribe(ctx context.Context, table string, kinds []app.ChangeKind, filter app.Filter, fn func(app.ChangeEvent)) (app.Subscription, error) {
	return f.local.Subscribe(ctx, table, kinds, filter, fn)
}
