package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/colivhub/colivrt/internal/config"

	"github.com/spf13/cobra"
)

var errConfigNotFound = errors.New("config file not found")

func CheckConfig() *cobra.Command {
	var checkConfigFile string
	var checkConfigStrict bool
	var checkConfigCmd = &cobra.Command{
		Use:   "checkconfig",
		Short: "Check configuration file",
		Long:  `Check colivrt configuration file`,
		Run: func(cmd *cobra.Command, args []string) {
			if err := validateConfigFile(cmd, checkConfigFile, checkConfigStrict); err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%s is valid\n", checkConfigFile)
		},
	}
	checkConfigCmd.Flags().StringVarP(&checkConfigFile, "config", "c", "config.json", "path to config file to check")
	checkConfigCmd.Flags().BoolVarP(&checkConfigStrict, "strict", "s", false, "strict check - fail on unknown keys and COLIVRT_ env vars")
	return checkConfigCmd
}

func validateConfigFile(cmd *cobra.Command, configFile string, strict bool) error {
	cfg, meta, err := config.GetConfig(cmd, configFile)
	if err != nil {
		return err
	}
	if meta.FileNotFound {
		return errConfigNotFound
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if !strict {
		return nil
	}
	if len(meta.UnknownKeys) > 0 {
		return fmt.Errorf("unknown keys in config: %s", strings.Join(meta.UnknownKeys, ", "))
	}
	if len(meta.UnknownEnvs) > 0 {
		return fmt.Errorf("unknown environment variables: %s", strings.Join(meta.UnknownEnvs, ", "))
	}
	return nil
}
