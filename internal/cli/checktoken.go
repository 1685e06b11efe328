package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/colivhub/colivrt/internal/auth"
	"github.com/colivhub/colivrt/internal/config"

	"github.com/spf13/cobra"
)

func CheckToken() *cobra.Command {
	var checkTokenConfigFile string
	var checkTokenCmd = &cobra.Command{
		Use:   "checktoken [TOKEN]",
		Short: "Check connection JWT",
		Long:  `Check connection JWT. Signature is verified when devserver.hmac_secret is set`,
		Run: func(cmd *cobra.Command, args []string) {
			checkToken(cmd, checkTokenConfigFile, args)
		},
	}
	checkTokenCmd.Flags().StringVarP(&checkTokenConfigFile, "config", "c", "config.json", "path to config file")
	return checkTokenCmd
}

func checkToken(cmd *cobra.Command, checkTokenConfigFile string, args []string) {
	cfg, _, err := config.GetConfig(cmd, checkTokenConfigFile)
	if err != nil {
		fmt.Printf("error getting config: %v\n", err)
		os.Exit(1)
	}
	if len(args) != 1 {
		fmt.Printf("error: provide token to check [colivrt checktoken <TOKEN>]\n")
		os.Exit(1)
	}
	claims, verified, err := inspectToken(cfg.DevServer.HMACSecret, args[0], time.Now())
	if err != nil {
		fmt.Printf("error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(describeClaims(claims, verified))
}

// inspectToken verifies the token with secret when given, otherwise only
// decodes and checks expiration.
func inspectToken(secret string, token string, now time.Time) (auth.Claims, bool, error) {
	if secret != "" {
		claims, err := auth.VerifyHS256(secret, token)
		return claims, true, err
	}
	claims, err := auth.Inspect(token)
	if err != nil {
		return auth.Claims{}, false, err
	}
	if claims.Expired(now) {
		return claims, false, auth.ErrTokenExpired
	}
	return claims, false, nil
}

func describeClaims(claims auth.Claims, verified bool) string {
	user := fmt.Sprintf("user %s", claims.Subject)
	if claims.Subject == "" {
		user = "token without subject"
	}
	exp := "without expiration"
	if !claims.ExpiresAt.IsZero() {
		exp = "expires at " + claims.ExpiresAt.Format(time.RFC3339)
	}
	state := "valid"
	if !verified {
		state = "decoded (signature not verified)"
	}
	return fmt.Sprintf("%s token for %s, %s", state, user, exp)
}
