package app

import (
	"strings"

	"github.com/colivhub/colivrt/internal/config"
	"github.com/colivhub/colivrt/internal/tools"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func logStartWarnings(cfg config.Config, cfgMeta config.Meta) {
	if !cfg.Realtime.Reconnection {
		log.Warn().Msg("realtime reconnection disabled, connection will not recover after network failures")
	}
	if cfg.Bridge.ReconnectOnLogin {
		log.Info().Msg("every login signal forces a new realtime connection")
	}
	for _, key := range cfgMeta.UnknownKeys {
		log.Warn().Str("key", key).Msg("unknown key in configuration file")
	}
	for _, key := range cfgMeta.UnknownEnvs {
		log.Warn().Str("var", key).Msg("unknown var in environment")
	}
}

func redactedURL(u string) string {
	redacted := tools.RedactedLogURLs(u)
	if len(redacted) == 0 {
		return ""
	}
	return redacted[0]
}

type httpErrorLogWriter struct {
	zerolog.Logger
}

func (w *httpErrorLogWriter) Write(data []byte) (int, error) {
	w.Logger.Warn().Msg(strings.TrimSpace(string(data)))
	return len(data), nil
}
