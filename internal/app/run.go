package app

import (
	"context"
	"fmt"
	"io"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/bridge"
	"github.com/colivhub/colivrt/internal/build"
	"github.com/colivhub/colivrt/internal/chat"
	"github.com/colivhub/colivrt/internal/config"
	"github.com/colivhub/colivrt/internal/eventbus"
	"github.com/colivhub/colivrt/internal/health"
	"github.com/colivhub/colivrt/internal/logging"
	"github.com/colivhub/colivrt/internal/metrics"
	"github.com/colivhub/colivrt/internal/middleware"
	"github.com/colivhub/colivrt/internal/notification"
	"github.com/colivhub/colivrt/internal/protocol"
	"github.com/colivhub/colivrt/internal/relay"
	"github.com/colivhub/colivrt/internal/restapi"
	"github.com/colivhub/colivrt/internal/service"
	"github.com/colivhub/colivrt/internal/tools"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/tidwall/gjson"
)

const shutdownTimeout = 10 * time.Second

// setup loads .env, config and logging shared by long-running commands. The
// returned func must be called on exit.
func setup(cmd *cobra.Command, configFile string) (config.Config, func()) {
	dotEnvUsed := false
	if tools.FileExists(".env") {
		err := godotenv.Load()
		if err != nil {
			log.Fatal().Err(err).Msg("error loading .env file")
		}
		dotEnvUsed = true
	}
	cfg, cfgMeta, err := config.GetConfig(cmd, configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("error getting config")
	}
	logCloseFn := logging.Setup(cfg.Log)
	if logCloseFn == nil {
		logCloseFn = func() {}
	}
	if cfgMeta.FileNotFound {
		log.Warn().Msg("config file not found, continue using environment and flag options")
	} else {
		absConfPath, _ := filepath.Abs(configFile)
		log.Info().Str("path", absConfPath).Msg("using config file")
		if dotEnvUsed {
			log.Info().Msg("environment variables have been loaded from .env file")
		}
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("error validating config")
	}
	logStartWarnings(cfg, cfgMeta)
	return cfg, logCloseFn
}

// Listener wires the realtime connection, notification bridge and feed of
// one application instance.
type Listener struct {
	cfg     config.Config
	metrics *metrics.Registry
	store   *auth.FileStore
	bus     *eventbus.Bus
	chat    *chat.Service
	feed    *notification.Feed
	bridge  *bridge.Bridge
	out     io.Writer
	room    string

	listeners map[string]relay.ListenerID
}

// NewListener builds all components. Metrics are recorded into registerer
// when prometheus is enabled in cfg.
func NewListener(cfg config.Config, registerer prometheus.Registerer, out io.Writer) (*Listener, error) {
	var m *metrics.Registry
	if cfg.Prometheus.Enabled {
		var err error
		m, err = metrics.New(metrics.Config{Registerer: registerer})
		if err != nil {
			return nil, fmt.Errorf("error creating metrics: %w", err)
		}
	}
	tokenFile := cfg.Auth.TokenFile
	if tokenFile == "" {
		var err error
		tokenFile, err = auth.DefaultTokenFile()
		if err != nil {
			return nil, err
		}
	}
	store := auth.NewFileStore(tokenFile)
	bus := eventbus.New(relay.WithMetrics(m))
	svc := chat.New(chat.TransportDialer(cfg.Realtime, m), chat.Options{Chat: cfg.Chat, Metrics: m})

	api, err := restapi.New(cfg.API.URL,
		restapi.WithTimeout(cfg.API.Timeout.ToDuration()),
		restapi.WithTokenSource(func() (string, error) {
			return auth.CurrentToken(store)
		}),
	)
	if err != nil {
		return nil, err
	}
	feed := notification.NewFeed(bus, api, m)
	toaster, err := notification.NewConsoleToaster(out, cfg.Bridge.ToastTemplate)
	if err != nil {
		return nil, err
	}
	br := bridge.New(svc, store, bus, toaster, bridge.Options{
		Bridge:    cfg.Bridge,
		Metrics:   m,
		Refetcher: feed,
	})
	return &Listener{
		cfg:     cfg,
		metrics: m,
		store:   store,
		bus:     bus,
		chat:    svc,
		feed:    feed,
		bridge:  br,
		out:     out,
	}, nil
}

// JoinOnConnect makes the listener join room every time the connection is
// established and print its messages.
func (l *Listener) JoinOnConnect(room string) {
	l.room = room
}

// Start mounts the bridge. The connection is opened if a credential is stored.
func (l *Listener) Start() {
	l.listeners = map[string]relay.ListenerID{
		chat.EventConnected:      l.chat.On(chat.EventConnected, l.onConnected),
		protocol.EventNewMessage: l.chat.On(protocol.EventNewMessage, l.onMessage),
		protocol.EventTyping:     l.chat.On(protocol.EventTyping, l.onTyping),
	}
	l.feed.Start()
	l.bridge.Mount()
}

// Stop unmounts the bridge and closes the connection.
func (l *Listener) Stop() {
	l.bridge.Unmount()
	l.feed.Stop()
	for event, id := range l.listeners {
		l.chat.Off(event, id)
	}
	l.listeners = nil
	l.chat.Disconnect()
}

// Reload re-reads the stored credential and signals the result.
func (l *Listener) Reload() {
	token, err := auth.CurrentToken(l.store)
	if err != nil {
		log.Error().Err(err).Msg("error reading credential")
		return
	}
	if token == "" {
		eventbus.Publish(l.bus, auth.LogoutTopic, auth.Signal{Source: "reload"})
		return
	}
	eventbus.Publish(l.bus, auth.LoginTopic, auth.Signal{Source: "reload"})
}

func (l *Listener) Chat() *chat.Service {
	return l.chat
}

func (l *Listener) Feed() *notification.Feed {
	return l.feed
}

// Stats for health endpoint.
func (l *Listener) Stats() map[string]any {
	st := l.chat.Status()
	return map[string]any{
		"connected":     st.Connected,
		"transport":     st.Transport,
		"room":          st.Room,
		"notifications": l.feed.List().Len(),
		"unread":        l.feed.List().Unread(),
	}
}

func (l *Listener) onConnected(any) {
	if l.room == "" || l.chat.ActiveRoom() == l.room {
		return
	}
	l.chat.JoinChat(l.room)
}

func (l *Listener) onMessage(data any) {
	raw, ok := data.(protocol.Raw)
	if !ok {
		return
	}
	r := gjson.ParseBytes(raw)
	if l.room != "" && r.Get("chatId").String() != l.room {
		return
	}
	_, _ = fmt.Fprintf(l.out, "[%s] %s: %s\n", r.Get("chatId").String(), r.Get("senderId").String(), r.Get("content").String())
}

func (l *Listener) onTyping(data any) {
	raw, ok := data.(protocol.Raw)
	if !ok {
		return
	}
	r := gjson.ParseBytes(raw)
	log.Debug().Str("chat", r.Get("chatId").String()).Str("user", r.Get("userId").String()).Bool("typing", r.Get("isTyping").Bool()).Msg("typing")
}

func (l *Listener) services() []namedService {
	var services []namedService
	if l.cfg.Auth.Watch {
		services = append(services, namedService{"credential watcher", auth.NewWatcher(l.store, l.bus)})
	}
	if l.cfg.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		mux.Handle("GET /health", health.NewHandler(health.Config{Stats: l.Stats}))
		srv := &http.Server{
			Addr:              l.cfg.Prometheus.Address,
			Handler:           middleware.LogRequest(mux),
			ReadHeaderTimeout: 5 * time.Second,
			ErrorLog:          stdlog.New(&httpErrorLogWriter{Logger: log.Logger}, "", 0),
		}
		services = append(services, namedService{"metrics server", service.HTTPServer(srv, shutdownTimeout)})
	}
	return services
}

type namedService struct {
	name string
	s    service.Service
}

// Run runs the listener until SIGINT or SIGTERM. SIGHUP re-reads the stored
// credential.
func Run(cmd *cobra.Command, configFile string, room string) {
	cfg, logCloseFn := setup(cmd, configFile)
	defer logCloseFn()

	log.Info().
		Str("version", build.Version).
		Str("runtime", runtime.Version()).
		Int("pid", os.Getpid()).
		Str("realtime_url", redactedURL(cfg.Realtime.URL)).
		Str("api_url", redactedURL(cfg.API.URL)).
		Msg("starting colivrt")

	l, err := NewListener(cfg, prometheus.DefaultRegisterer, os.Stdout)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating listener")
	}
	l.JoinOnConnect(room)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	manager := service.NewManager()
	for _, s := range l.services() {
		manager.Register(s.name, s.s)
	}
	runCtx := manager.Run(ctx)

	l.Start()
	if token, _ := auth.CurrentToken(l.store); token == "" {
		log.Info().Str("token_file", l.store.Path()).Msg("no credential stored, waiting for login")
	}

	handleSignals(runCtx, l)

	log.Info().Msg("shutting down ...")
	go time.AfterFunc(shutdownTimeout, func() {
		log.Fatal().Msg("shutdown timeout reached")
	})
	l.Stop()
	cancel()
	if err := manager.Wait(); err != nil {
		log.Error().Err(err).Msg("service error")
	}
}

func handleSignals(ctx context.Context, l *Listener) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP, syscall.SIGINT, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-sigCh:
			log.Info().Msgf("signal received: %v", sig)
			if sig == syscall.SIGHUP {
				log.Info().Msg("reloading credential")
				l.Reload()
				continue
			}
			return
		}
	}
}
