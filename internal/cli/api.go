package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/config"
	"github.com/colivhub/colivrt/internal/restapi"

	"github.com/spf13/cobra"
)

var errNotLoggedIn = errors.New("not logged in, run colivrt login first")

// apiClient builds REST client authorized with the stored credential.
func apiClient(cmd *cobra.Command, configFile string) (*restapi.Client, auth.Claims) {
	cfg, _, err := config.GetConfig(cmd, configFile)
	if err != nil {
		fmt.Printf("error getting config: %v\n", err)
		os.Exit(1)
	}
	client, claims, err := newAPIClient(cfg)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	return client, claims
}

func newAPIClient(cfg config.Config) (*restapi.Client, auth.Claims, error) {
	path, err := tokenFile(cfg)
	if err != nil {
		return nil, auth.Claims{}, err
	}
	token, err := auth.CurrentToken(auth.NewFileStore(path))
	if err != nil {
		return nil, auth.Claims{}, err
	}
	if token == "" {
		return nil, auth.Claims{}, errNotLoggedIn
	}
	claims, _ := auth.Inspect(token)
	client, err := restapi.New(cfg.API.URL,
		restapi.WithTimeout(cfg.API.Timeout.ToDuration()),
		restapi.WithTokenSource(func() (string, error) { return token, nil }),
	)
	if err != nil {
		return nil, auth.Claims{}, err
	}
	return client, claims, nil
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
