package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/colivhub/colivrt/internal/protocol"
	"github.com/colivhub/colivrt/internal/restapi"

	"github.com/spf13/cobra"
)

func Chats() *cobra.Command {
	var chatsConfigFile string
	var chatsChatID string
	var chatsLimit int
	var chatsCmd = &cobra.Command{
		Use:   "chats",
		Short: "List chats of current user",
		Long:  `List chats of current user, or latest messages of one chat with --chat`,
		Run: func(cmd *cobra.Command, args []string) {
			client, claims := apiClient(cmd, chatsConfigFile)
			ctx := commandContext(cmd)
			if chatsChatID != "" {
				messages, err := client.Messages(ctx, chatsChatID, 1, chatsLimit)
				if err != nil {
					fmt.Printf("error: %v\n", err)
					os.Exit(1)
				}
				printMessages(os.Stdout, messages)
				return
			}
			if claims.Subject == "" {
				fmt.Printf("error: stored token has no subject\n")
				os.Exit(1)
			}
			chats, err := client.UserChats(ctx, claims.Subject)
			if err != nil {
				fmt.Printf("error: %v\n", err)
				os.Exit(1)
			}
			printChats(os.Stdout, chats)
		},
	}
	chatsCmd.Flags().StringVarP(&chatsConfigFile, "config", "c", "config.json", "path to config file")
	chatsCmd.Flags().StringVarP(&chatsChatID, "chat", "", "", "show messages of chat")
	chatsCmd.Flags().IntVarP(&chatsLimit, "limit", "l", 20, "number of messages to show")
	return chatsCmd
}

func printChats(w io.Writer, chats []restapi.Chat) {
	if len(chats) == 0 {
		_, _ = fmt.Fprintln(w, "no chats")
		return
	}
	for _, c := range chats {
		name := c.Name
		if name == "" {
			name = "-"
		}
		line := fmt.Sprintf("%s\t%s\t%d participants", c.ID, name, len(c.Participants))
		if c.LastMessage != nil {
			line += "\t" + c.LastMessage.SenderID + ": " + c.LastMessage.Content
		}
		_, _ = fmt.Fprintln(w, line)
	}
}

// printMessages prints oldest first, API returns newest first.
func printMessages(w io.Writer, messages []protocol.ChatMessage) {
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		_, _ = fmt.Fprintf(w, "%s %s: %s\n", m.CreatedAt, m.SenderID, m.Content)
	}
}
