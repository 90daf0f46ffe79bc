package main

import (
	"context"
	"fmt"
	"time"

	circle "github.com/circlehq/circle-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(notificationsCmd)
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "List notifications",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Notifications().List(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.NotificationsQuery(), func(e circle.Entity) string {
			n := e.(circle.Notification)
			marker := " "
			if !n.Read {
				marker = "*"
			}
			return fmt.Sprintf("%s %-12s %s", marker, n.Kind, n.Body)
		})
		return nil
	},
}
