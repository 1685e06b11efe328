package cli

import (
	"fmt"
	"os"

	"github.com/colivhub/colivrt/internal/protocol"

	"github.com/spf13/cobra"
)

func Notify() *cobra.Command {
	var notifyConfigFile string
	var n protocol.SendNotification
	var notifyCmd = &cobra.Command{
		Use:   "notify",
		Short: "Send notification to user",
		Long:  `Send notification to user through the REST API. Without --user notification goes to yourself`,
		Run: func(cmd *cobra.Command, args []string) {
			if n.Title == "" && n.Message == "" {
				fmt.Printf("error: provide --title or --message\n")
				os.Exit(1)
			}
			client, _ := apiClient(cmd, notifyConfigFile)
			created, err := client.Notify(commandContext(cmd), n)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("notification %s sent\n", created.ID)
		},
	}
	notifyCmd.Flags().StringVarP(&notifyConfigFile, "config", "c", "config.json", "path to config file")
	notifyCmd.Flags().StringVarP(&n.UserID, "user", "", "", "target user ID")
	notifyCmd.Flags().StringVarP(&n.Title, "title", "", "", "notification title")
	notifyCmd.Flags().StringVarP(&n.Message, "message", "m", "", "notification message")
	notifyCmd.Flags().StringVarP(&n.ActionURL, "action-url", "", "", "optional URL to open on click")
	return notifyCmd
}
