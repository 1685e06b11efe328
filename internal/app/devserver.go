package app

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/colivhub/colivrt/internal/build"
	"github.com/colivhub/colivrt/internal/devserver"
	"github.com/colivhub/colivrt/internal/service"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// RunDevServer runs the development realtime server until SIGINT or SIGTERM.
func RunDevServer(cmd *cobra.Command, configFile string) {
	cfg, logCloseFn := setup(cmd, configFile)
	defer logCloseFn()

	var registerer prometheus.Registerer
	if cfg.Prometheus.Enabled {
		registerer = prometheus.DefaultRegisterer
	}
	srv, err := devserver.New(devserver.Config{
		DevServer:    cfg.DevServer,
		Path:         cfg.Realtime.Path,
		PingInterval: cfg.Realtime.PingInterval.ToDuration(),
		Registerer:   registerer,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("error creating development server")
	}
	log.Info().Str("version", build.Version).Int("pid", os.Getpid()).Msg("starting colivrt development server")

	manager := service.NewManager()
	manager.Register("devserver", service.Func(srv.Run))
	if cfg.Prometheus.Enabled {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", promhttp.Handler())
		manager.Register("metrics server", service.HTTPServer(&http.Server{
			Addr:              cfg.Prometheus.Address,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}, shutdownTimeout))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	manager.Run(ctx)
	if err := manager.Wait(); err != nil {
		log.Fatal().Err(err).Msg("development server error")
	}
	log.Info().Msg("development server stopped")
}
