// Package bridge ties the authentication state to the realtime connection and
// turns server pushed notifications into toasts and application events.
package bridge

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/chat"
	"github.com/colivhub/colivrt/internal/configtypes"
	"github.com/colivhub/colivrt/internal/eventbus"
	"github.com/colivhub/colivrt/internal/metrics"
	"github.com/colivhub/colivrt/internal/notification"
	"github.com/colivhub/colivrt/internal/protocol"
	"github.com/colivhub/colivrt/internal/relay"

	"github.com/rs/zerolog/log"
)

// Connection is the part of chat.Service used by Bridge.
type Connection interface {
	Connect(token string) (chat.Socket, error)
	Disconnect()
	HasConnection() bool
	Token() string
	On(event string, handler relay.Handler) relay.ListenerID
	Off(event string, id relay.ListenerID)
}

// Refetcher reconciles local state with the backend after an optimistic update.
type Refetcher interface {
	Reconcile(ctx context.Context) error
}

type Options struct {
	Bridge    configtypes.Bridge
	Metrics   *metrics.Registry
	Refetcher Refetcher
}

// Bridge is mounted once per application. Unmount releases everything Mount
// registered but leaves the shared connection open.
type Bridge struct {
	conn    Connection
	store   auth.Store
	bus     *eventbus.Bus
	toaster notification.Toaster
	opts    Options

	mu        sync.Mutex
	mounted   bool
	listener  relay.ListenerID
	loginSub  eventbus.Subscription
	logoutSub eventbus.Subscription
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

func New(conn Connection, store auth.Store, bus *eventbus.Bus, toaster notification.Toaster, opts Options) *Bridge {
	return &Bridge{
		conn:    conn,
		store:   store,
		bus:     bus,
		toaster: toaster,
		opts:    opts,
	}
}

// Mount registers the notification listener and the login/logout signal
// subscriptions, then connects if a credential is stored.
func (b *Bridge) Mount() {
	b.mu.Lock()
	if b.mounted {
		b.mu.Unlock()
		return
	}
	b.mounted = true
	b.ctx, b.cancel = context.WithCancel(context.Background())
	b.listener = b.conn.On(protocol.EventNewNotification, b.handleNotification)
	b.loginSub = eventbus.Subscribe(b.bus, auth.LoginTopic, b.onLogin)
	b.logoutSub = eventbus.Subscribe(b.bus, auth.LogoutTopic, b.onLogout)
	b.mu.Unlock()

	b.ensureConnected(false)
}

// Unmount removes exactly the listener and subscriptions added by Mount and
// cancels in-flight refetches. The connection is not closed.
func (b *Bridge) Unmount() {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		return
	}
	b.mounted = false
	b.conn.Off(protocol.EventNewNotification, b.listener)
	b.bus.Unsubscribe(b.loginSub)
	b.bus.Unsubscribe(b.logoutSub)
	b.listener = 0
	b.loginSub = eventbus.Subscription{}
	b.logoutSub = eventbus.Subscription{}
	b.cancel()
	b.mu.Unlock()

	b.wg.Wait()
}

func (b *Bridge) Mounted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.mounted
}

// ensureConnected connects with the stored credential unless a connection for
// the same credential already exists. force reconnects anyway.
func (b *Bridge) ensureConnected(force bool) {
	token, err := auth.CurrentToken(b.store)
	if err != nil {
		log.Warn().Err(err).Msg("error reading credential")
		return
	}
	if token == "" {
		log.Debug().Msg("no credential, staying disconnected")
		return
	}
	if !force && b.conn.HasConnection() && b.conn.Token() == token {
		return
	}
	if _, err := b.conn.Connect(token); err != nil {
		log.Error().Err(err).Msg("error connecting")
	}
}

func (b *Bridge) onLogin(s auth.Signal) {
	log.Debug().Str("source", s.Source).Msg("login signal")
	b.ensureConnected(b.opts.Bridge.ReconnectOnLogin)
}

func (b *Bridge) onLogout(s auth.Signal) {
	log.Debug().Str("source", s.Source).Msg("logout signal")
	b.conn.Disconnect()
}

func (b *Bridge) handleNotification(data any) {
	if !b.Mounted() {
		return
	}
	raw, ok := data.(protocol.Raw)
	if !ok {
		log.Warn().Msg("unexpected notification payload type")
		return
	}
	n, err := notification.Parse(raw)
	if err != nil {
		log.Warn().Err(err).Msg("malformed notification")
		return
	}
	b.opts.Metrics.IncNotification()

	b.toaster.Show(notification.ToastFor(n, b.opts.Bridge.ToastDuration.ToDuration()))
	b.opts.Metrics.IncToast()

	eventbus.Publish(b.bus, notification.NewTopic, n)

	if b.opts.Bridge.RefetchOnNotification && b.opts.Refetcher != nil {
		b.refetch()
	}
}

func (b *Bridge) refetch() {
	b.mu.Lock()
	if !b.mounted {
		b.mu.Unlock()
		return
	}
	ctx := b.ctx
	b.wg.Add(1)
	b.mu.Unlock()

	go func() {
		defer b.wg.Done()
		if timeout := b.opts.Bridge.RefetchTimeout.ToDuration(); timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		started := time.Now()
		err := b.opts.Refetcher.Reconcile(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Warn().Err(err).Str("elapsed", time.Since(started).String()).Msg("notification refetch failed")
		}
	}()
}
