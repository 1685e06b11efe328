package cli

import (
	"fmt"
	"os"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/config"
	"github.com/colivhub/colivrt/internal/eventbus"

	"github.com/spf13/cobra"
)

const cliSource = "cli"

func Login() *cobra.Command {
	var loginConfigFile string
	var loginCmd = &cobra.Command{
		Use:   "login [TOKEN]",
		Short: "Store connection credential",
		Long:  `Store connection credential. A running listener watching the token file connects with it`,
		Run: func(cmd *cobra.Command, args []string) {
			if len(args) != 1 {
				fmt.Printf("error: provide token [colivrt login <TOKEN>]\n")
				os.Exit(1)
			}
			store := tokenStore(cmd, loginConfigFile)
			if err := auth.Login(store, eventbus.New(), args[0], cliSource); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("credential saved to %s\n", store.Path())
		},
	}
	loginCmd.Flags().StringVarP(&loginConfigFile, "config", "c", "config.json", "path to config file")
	return loginCmd
}

func Logout() *cobra.Command {
	var logoutConfigFile string
	var logoutCmd = &cobra.Command{
		Use:   "logout",
		Short: "Remove stored connection credential",
		Long:  `Remove stored connection credential. A running listener watching the token file disconnects`,
		Run: func(cmd *cobra.Command, args []string) {
			store := tokenStore(cmd, logoutConfigFile)
			if err := auth.Logout(store, eventbus.New(), cliSource); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println("credential removed")
		},
	}
	logoutCmd.Flags().StringVarP(&logoutConfigFile, "config", "c", "config.json", "path to config file")
	return logoutCmd
}

func tokenStore(cmd *cobra.Command, configFile string) *auth.FileStore {
	cfg, _, err := config.GetConfig(cmd, configFile)
	if err != nil {
		fmt.Printf("error getting config: %v\n", err)
		os.Exit(1)
	}
	path, err := tokenFile(cfg)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	return auth.NewFileStore(path)
}

func tokenFile(cfg config.Config) (string, error) {
	if cfg.Auth.TokenFile != "" {
		return cfg.Auth.TokenFile, nil
	}
	return auth.DefaultTokenFile()
}
