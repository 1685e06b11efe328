package main

import (
	"github.com/colivhub/colivrt/internal/app"
	"github.com/colivhub/colivrt/internal/cli"
)

func main() {
	rootCmd := app.Colivrt()
	rootCmd.AddCommand(
		app.Listen(),
		app.DevServer(),
		cli.Version(),
		cli.CheckConfig(),
		cli.DefaultConfigCommand(),
		cli.DefaultEnv(),
		cli.GenToken(),
		cli.CheckToken(),
		cli.Login(),
		cli.Logout(),
		cli.Notify(),
		cli.Chats(),
	)
	_ = rootCmd.Execute()
}
