package auth

import (
	"errors"
	"time"

	"github.com/colivhub/colivrt/internal/eventbus"

	"github.com/rs/zerolog/log"
)

// Signal is the payload of login and logout topics. Consumers read the
// credential from the Store, Source only tells who fired the signal.
type Signal struct {
	Source string
}

var (
	LoginTopic  = eventbus.NewTopic[Signal]("auth:login")
	LogoutTopic = eventbus.NewTopic[Signal]("auth:logout")
)

var ErrEmptyToken = errors.New("empty token")

// Login saves token and fires the login signal.
func Login(store Store, bus *eventbus.Bus, token string, source string) error {
	if token == "" {
		return ErrEmptyToken
	}
	if err := store.Save(token); err != nil {
		return err
	}
	eventbus.Publish(bus, LoginTopic, Signal{Source: source})
	return nil
}

// Logout clears the credential and fires the logout signal.
func Logout(store Store, bus *eventbus.Bus, source string) error {
	if err := store.Clear(); err != nil {
		return err
	}
	eventbus.Publish(bus, LogoutTopic, Signal{Source: source})
	return nil
}

// CurrentToken returns the stored credential. Expired JWTs are reported as
// absent, opaque tokens are returned as is.
func CurrentToken(store Store) (string, error) {
	token, err := store.Load()
	if err != nil || token == "" {
		return "", err
	}
	claims, err := Inspect(token)
	if err != nil {
		return token, nil
	}
	if claims.Expired(time.Now()) {
		log.Debug().Str("subject", claims.Subject).Msg("stored token expired")
		return "", nil
	}
	return token, nil
}
