package cli

import (
	"fmt"
	"runtime"

	"github.com/colivhub/colivrt/internal/build"

	"github.com/spf13/cobra"
)

func Version() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "colivrt version information",
		Long:  `Print the version information of colivrt`,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(versionString())
		},
	}
}

func versionString() string {
	return fmt.Sprintf("colivrt v%s (Go version: %s)", build.Version, runtime.Version())
}
