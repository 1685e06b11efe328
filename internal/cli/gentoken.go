package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/config"

	"github.com/spf13/cobra"
)

func GenToken() *cobra.Command {
	var genTokenConfigFile string
	var genTokenUser string
	var genTokenTTL int64
	var genTokenQuiet bool
	var genTokenCmd = &cobra.Command{
		Use:   "gentoken",
		Short: "Generate sample connection JWT for user",
		Long:  `Generate sample connection JWT for user signed with devserver.hmac_secret`,
		Run: func(cmd *cobra.Command, args []string) {
			genToken(cmd, genTokenConfigFile, genTokenUser, genTokenTTL, genTokenQuiet)
		},
	}
	genTokenCmd.Flags().StringVarP(&genTokenConfigFile, "config", "c", "config.json", "path to config file")
	genTokenCmd.Flags().StringVarP(&genTokenUser, "user", "u", "", "user ID")
	genTokenCmd.Flags().Int64VarP(&genTokenTTL, "ttl", "t", 3600*24*7, "token TTL in seconds, use -1 for token without expiration")
	genTokenCmd.Flags().BoolVarP(&genTokenQuiet, "quiet", "q", false, "only output the token without anything else")
	return genTokenCmd
}

func genToken(cmd *cobra.Command, genTokenConfigFile string, genTokenUser string, genTokenTTL int64, genTokenQuiet bool) {
	cfg, _, err := config.GetConfig(cmd, genTokenConfigFile)
	if err != nil {
		fmt.Printf("error getting config: %v\n", err)
		os.Exit(1)
	}
	if genTokenUser == "" {
		fmt.Printf("error: provide user ID [colivrt gentoken -u <USER>]\n")
		os.Exit(1)
	}
	token, err := auth.GenerateHS256(cfg.DevServer.HMACSecret, genTokenUser, time.Duration(genTokenTTL)*time.Second)
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	if genTokenQuiet {
		fmt.Print(token)
		return
	}
	exp := "without expiration"
	if genTokenTTL >= 0 {
		exp = fmt.Sprintf("with expiration TTL %s", time.Duration(genTokenTTL)*time.Second)
	}
	fmt.Printf("HMAC SHA-256 JWT for user \"%s\" %s:\n%s\n", genTokenUser, exp, token)
}
