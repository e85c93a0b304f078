package memory

import (
	"context"
	"sync"

	"partyquiz-service/internal/app"
)

// Bus is the in-process change feed: writers publish committed row changes
// and every matching subscription delivers them, in publish order, to its
// callback on a dedicated goroutine. A slow consumer has its oldest pending
// event dropped rather than blocking publishers; observers treat events as
// snapshot triggers, so a dropped event is superseded by the one replacing it.
type Bus struct {
	mu   sync.RWMutex
	subs map[*busSub]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*busSub]struct{})}
}

type busSub struct {
	bus    *Bus
	table  string
	kinds  map[app.ChangeKind]struct{}
	filter app.Filter
	ch     chan app.ChangeEvent
	once   sync.Once
}

// Publish dispatches the event to all matching subscriptions. It never
// blocks: a full subscription has its oldest pending event dropped to make
// room, and if a concurrent publisher refills the slot the new event is
// dropped too.
func (b *Bus) Publish(_ context.Context, ev app.ChangeEvent) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.subs {
		if !sub.matches(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
		}
	}
	return nil
}

// Subscribe registers a callback for row changes matching table, kinds and
// filter. The returned subscription must be closed or delivery continues and
// the goroutine leaks.
func (b *Bus) Subscribe(_ context.Context, table string, kinds []app.ChangeKind, filter app.Filter, fn func(app.ChangeEvent)) (app.Subscription, error) {
	sub := &busSub{
		bus:    b,
		table:  table,
		kinds:  make(map[app.ChangeKind]struct{}, len(kinds)),
		filter: filter,
		ch:     make(chan app.ChangeEvent, 8),
	}
	for _, k := range kinds {
		sub.kinds[k] = struct{}{}
	}

	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()

	go func() {
		for ev := range sub.ch {
			fn(ev)
		}
	}()
	return sub, nil
}

func (s *busSub) matches(ev app.ChangeEvent) bool {
	if ev.Table != s.table {
		return false
	}
	if len(s.kinds) > 0 {
		if _, ok := s.kinds[ev.Kind]; !ok {
			return false
		}
	}
	return s.filter.Matches(ev)
}

func (s *busSub) Close() {
	s.once.Do(func() {
		s.bus.mu.Lock()
		delete(s.bus.subs, s)
		s.bus.mu.Unlock()
		close(s.ch)
	})
}
