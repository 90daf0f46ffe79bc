package main

import (
	"context"
	"fmt"
	"time"

	circle "github.com/circlehq/circle-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(friendsCmd)
	friendsCmd.AddCommand(friendsListCmd)
	friendsCmd.AddCommand(friendsRequestsCmd)
	friendsCmd.AddCommand(friendsSuggestedCmd)
	friendsCmd.AddCommand(friendsAddCmd)
	friendsCmd.AddCommand(friendsAcceptCmd)
	friendsCmd.AddCommand(friendsDeclineCmd)
	friendsCmd.AddCommand(friendsRemoveCmd)
}

var friendsCmd = &cobra.Command{
	Use:   "friends",
	Short: "Friend graph commands",
	Long:  "Manage the friend graph: list friends, review requests, and send or answer them.",
}

var friendsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List friends",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().List(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.FriendsQuery(), func(e circle.Entity) string {
			u := e.(circle.User)
			return fmt.Sprintf("%-20s %s", u.Username, u.ID)
		})
		return nil
	},
}

var friendsRequestsCmd = &cobra.Command{
	Use:   "requests",
	Short: "List incoming friend requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().Requests(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.FriendRequestsQuery(), func(e circle.Entity) string {
			r := e.(circle.FriendRequest)
			return fmt.Sprintf("%-20s request=%s  %s", r.From.Username, r.ID, r.CreatedAt)
		})
		return nil
	},
}

var friendsSuggestedCmd = &cobra.Command{
	Use:   "suggested",
	Short: "List suggested users",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().Suggested(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.SuggestedUsersQuery(), func(e circle.Entity) string {
			u := e.(circle.User)
			return fmt.Sprintf("%-20s %s  [%s]", u.Username, u.ID, u.Relationship)
		})
		return nil
	},
}

var friendsAddCmd = &cobra.Command{
	Use:   "add <user-id>",
	Short: "Send a friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().SendRequest(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Request sent.")
		return nil
	},
}

var friendsAcceptCmd = &cobra.Command{
	Use:   "accept <request-id>",
	Short: "Accept an incoming friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().Accept(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Request accepted.")
		return nil
	},
}

var friendsDeclineCmd = &cobra.Command{
	Use:   "decline <request-id>",
	Short: "Decline an incoming friend request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().Decline(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Request declined.")
		return nil
	},
}

var friendsRemoveCmd = &cobra.Command{
	Use:   "remove <user-id>",
	Short: "Remove a friend",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Friends().Remove(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Friend removed.")
		return nil
	},
}
