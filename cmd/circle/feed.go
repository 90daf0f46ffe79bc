package main

import (
	"context"
	"fmt"
	"time"

	circle "github.com/circlehq/circle-go"
	"github.com/spf13/cobra"
)

var postBody string

func init() {
	feedPostCmd.Flags().StringVar(&postBody, "body", "", "post body")
	feedPostCmd.MarkFlagRequired("body")

	rootCmd.AddCommand(feedCmd)
	feedCmd.AddCommand(feedShowCmd)
	feedCmd.AddCommand(feedPostCmd)
	feedCmd.AddCommand(feedReactCmd)
	feedCmd.AddCommand(feedShareCmd)
	feedCmd.AddCommand(feedCommentsCmd)
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Content feed commands",
	Long:  "Browse the feed, publish posts, react, share, and read comment threads.",
}

func contentLine(e circle.Entity) string {
	c := e.(circle.Content)
	author := c.AuthorID
	if c.Author != nil {
		author = c.Author.Username
	}
	return fmt.Sprintf("%s  %-16s reactions=%d comments=%d shares=%d\n    %s",
		c.ID, author, c.Reactions.Total, c.CommentCount, c.ShareCount, c.Body)
}

var feedShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the global feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Feed().Home(ctx); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.FeedQuery(), contentLine)
		return nil
	},
}

var feedPostCmd = &cobra.Command{
	Use:   "post",
	Short: "Publish a new post",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		content, err := client.Feed().Post(ctx, &circle.PostContentOptions{Body: postBody})
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Posted %s\n", content.ID)
		return nil
	},
}

var feedReactCmd = &cobra.Command{
	Use:   "react <content-id> <kind>",
	Short: "React to a content item (empty kind removes the reaction)",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		kind := ""
		if len(args) == 2 {
			kind = args[1]
		}
		if err := client.Feed().ToggleReaction(ctx, args[0], kind); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Println("Reaction updated.")
		return nil
	},
}

var feedShareCmd = &cobra.Command{
	Use:   "share <content-id>",
	Short: "Share a content item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		share, err := client.Feed().Share(ctx, args[0])
		if err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		fmt.Printf("Shared as %s\n", share.ID)
		return nil
	},
}

var feedCommentsCmd = &cobra.Command{
	Use:   "comments <content-id>",
	Short: "Show a content item's comments",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := client.Feed().Comments(ctx, args[0]); err != nil {
			return fmt.Errorf("request failed: %w", err)
		}
		printEntries(client, circle.CommentsQuery(args[0]), func(e circle.Entity) string {
			c := e.(circle.Comment)
			author := c.AuthorID
			if c.Author != nil {
				author = c.Author.Username
			}
			return fmt.Sprintf("%-16s %s", author, c.Body)
		})
		return nil
	},
}
