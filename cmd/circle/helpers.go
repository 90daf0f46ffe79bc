package main

import (
	"fmt"
	"os"

	circle "github.com/circlehq/circle-go"
)

// getClient creates a Circle client from the stored config.
func getClient() *circle.Client {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if cfg.Auth.Token == "" {
		fmt.Fprintln(os.Stderr, "No token. Run 'circle login <token>' first.")
		os.Exit(1)
	}

	var opts []circle.ClientOption
	if cfg.Default.BaseURL != "" {
		opts = append(opts, circle.WithBaseURL(cfg.Default.BaseURL))
	}
	if cfg.Auth.UserID != "" {
		opts = append(opts, circle.WithUserID(cfg.Auth.UserID))
	}

	return circle.NewClient(cfg.Auth.Token, opts...)
}

// printEntries dumps the cached items for one query, one line per entity.
func printEntries(client *circle.Client, key circle.QueryKey, line func(circle.Entity) string) {
	entry, ok := client.Cache().Read(key)
	if !ok {
		fmt.Println("(empty)")
		return
	}
	items := entry.Items()
	if len(items) == 0 {
		fmt.Println("(empty)")
		return
	}
	for _, e := range items {
		fmt.Println(line(e))
	}
	if entry.HasMore {
		fmt.Println("... more available")
	}
}
