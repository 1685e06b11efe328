package notification

import (
	"context"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/eventbus"
	"github.com/colivhub/colivrt/internal/metrics"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Fetcher loads the authoritative notification list, ex. from the REST API.
type Fetcher interface {
	Notifications(ctx context.Context) ([]Notification, error)
}

// Feed maintains a List from bridged notifications and reconciles it with
// the backend.
type Feed struct {
	bus     *eventbus.Bus
	fetcher Fetcher
	metrics *metrics.Registry
	list    *List
	group   singleflight.Group

	mu  sync.Mutex
	sub eventbus.Subscription
}

func NewFeed(bus *eventbus.Bus, fetcher Fetcher, m *metrics.Registry) *Feed {
	return &Feed{
		bus:     bus,
		fetcher: fetcher,
		metrics: m,
		list:    NewList(),
	}
}

func (f *Feed) List() *List {
	return f.list
}

// Start subscribes to bridged notifications and inserts them optimistically.
func (f *Feed) Start() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sub != (eventbus.Subscription{}) {
		return
	}
	f.sub = eventbus.Subscribe(f.bus, NewTopic, func(n Notification) {
		if !f.list.Insert(n) {
			log.Debug().Str("id", n.ID).Msg("duplicate notification skipped")
		}
	})
}

func (f *Feed) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bus.Unsubscribe(f.sub)
	f.sub = eventbus.Subscription{}
}

// Reconcile replaces the list with the authoritative one. Concurrent calls
// share one request.
func (f *Feed) Reconcile(ctx context.Context) error {
	if f.fetcher == nil {
		return nil
	}
	_, err, _ := f.group.Do("reconcile", func() (any, error) {
		started := time.Now()
		items, err := f.fetcher.Notifications(ctx)
		f.metrics.ObserveRefetch(started, err)
		if err != nil {
			return nil, err
		}
		f.list.Replace(items)
		return nil, nil
	})
	return err
}
