package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/colivhub/colivrt/internal/config"

	"github.com/spf13/cobra"
)

func DefaultEnv() *cobra.Command {
	var defaultEnvCmd = &cobra.Command{
		Use:   "defaultenv",
		Short: "Generate full environment var list with defaults",
		Long:  `Generate full colivrt environment var list with defaults`,
		Run: func(cmd *cobra.Command, args []string) {
			printEnvVars(os.Stdout, config.EnvVars())
		},
	}
	return defaultEnvCmd
}

func printEnvVars(w io.Writer, vars []config.EnvVar) {
	for _, v := range vars {
		_, _ = fmt.Fprintf(w, "%s=%s\n", v.Name, envValue(v.Default))
	}
}

func envValue(v any) string {
	switch val := v.(type) {
	case string:
		return fmt.Sprintf("%q", val)
	case []string:
		// Lists are space separated, see StringToSliceHookFunc in config.
		return fmt.Sprintf("%q", strings.Join(val, " "))
	default:
		return fmt.Sprintf("%v", val)
	}
}
