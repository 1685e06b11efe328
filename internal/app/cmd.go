package app

import (
	"github.com/colivhub/colivrt/internal/config"

	"github.com/spf13/cobra"
)

// Colivrt is the root command. Without a subcommand it runs the listener.
func Colivrt() *cobra.Command {
	var configFile string
	var room string
	cmd := &cobra.Command{
		Use:   "colivrt",
		Short: "colivrt",
		Long:  "colivrt, realtime chat and notification client of the co-living platform",
		Run: func(cmd *cobra.Command, args []string) {
			Run(cmd, configFile, room)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	cmd.Flags().StringVarP(&room, "room", "r", "", "chat room to join and print messages from")
	config.DefineFlags(cmd)
	return cmd
}

// Listen is the explicit form of the root command.
func Listen() *cobra.Command {
	var configFile string
	var room string
	cmd := &cobra.Command{
		Use:   "listen",
		Short: "Listen for notifications",
		Long:  `Connect with the stored credential and show notifications until interrupted`,
		Run: func(cmd *cobra.Command, args []string) {
			Run(cmd, configFile, room)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	cmd.Flags().StringVarP(&room, "room", "r", "", "chat room to join and print messages from")
	return cmd
}

func DevServer() *cobra.Command {
	var configFile string
	cmd := &cobra.Command{
		Use:   "devserver",
		Short: "Run development realtime server",
		Long:  `Run in-memory realtime chat and notification server for local development`,
		Run: func(cmd *cobra.Command, args []string) {
			RunDevServer(cmd, configFile)
		},
	}
	cmd.Flags().StringVarP(&configFile, "config", "c", "config.json", "path to config file")
	return cmd
}
