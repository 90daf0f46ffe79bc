package main

import (
	"context"
	"fmt"
	"time"

	circle "github.com/circlehq/circle-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(chatsCmd)
	chatsCmd.AddCommand(chatsListCmd)
	chatsCmd.AddCommand(chatsMessagesCmd)
	chatsCmd.AddCommand(chatsSendCmd)
	chatsCmd.AddCommand(chatsReadCmd)
	chatsCmd.AddCommand(chatsArchiveCmd)
}

var chatsCmd = &cobra.Command{
	Use:   "chats",
	Short: "Chat commands",
	Long:  "List chats, read message history, send messages, and mark them read.",
}

var chatsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List chats",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Chats().List(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.ChatsQuery(), func(e circle.Entity) string {
			c := e.(circle.Chat)
			last := ""
			if c.LastMessage != nil {
				last = c.LastMessage.Content
			}
			return fmt.Sprintf("%s  %-16s unread=%d  %s", c.ID, c.Peer.Username, c.UnreadCount, last)
		})
		return nil
	},
}

var chatsMessagesCmd = &cobra.Command{
	Use:   "messages <chat-id>",
	Short: "Show a chat's message history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Chats().Messages(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.ChatMessagesQuery(args[0]), func(e circle.Entity) string {
			m := e.(circle.Message)
			return fmt.Sprintf("%-12s %s  %s", m.SenderID, m.CreatedAt, m.Content)
		})
		return nil
	},
}

var chatsSendCmd = &cobra.Command{
	Use:   "send <chat-id> <text>",
	Short: "Send a message",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		outbox := client.Chats().NewMessageOutbox(args[0], nil)
		defer outbox.Close()

		done := make(chan circle.PendingStatus, 1)
		outbox.OnChange(func() {
			// Single submission, so any settled item is ours.
			for _, item := range outbox.Items() {
				if item.Status != circle.PendingSending {
					select {
					case done <- item.Status:
					default:
					}
				}
			}
		})
		outbox.Submit(ctx, circle.MessageDraft{ChatID: args[0], Content: args[1]})

		select {
		case status := <-done:
			if status == circle.PendingFailed {
				return fmt.Errorf("send failed")
			}
			fmt.Println("Sent.")
			return nil
		case <-ctx.Done():
			return fmt.Errorf("send timed out")
		}
	},
}

var chatsReadCmd = &cobra.Command{
	Use:   "read <chat-id> <message-id>...",
	Short: "Mark messages in a chat as read",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		receipts := client.Chats().NewReadReceipts(args[0])
		for _, id := range args[1:] {
			receipts.MarkViewed(id)
		}
		if err := receipts.Flush(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Marked %d message(s) read.\n", len(args)-1)
		return nil
	},
}

var chatsArchiveCmd = &cobra.Command{
	Use:   "archive <chat-id>",
	Short: "Archive a chat",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Chats().Archive(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Archived.")
		return nil
	},
}
