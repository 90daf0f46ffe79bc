package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	circle "github.com/circlehq/circle-go"
	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(watchCmd)
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the push channel",
	Long:  "Connect to the push channel and print incoming alerts until interrupted.",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := getClient()

		client.Router().OnAlert(func(event, text string) {
			fmt.Printf("[%s] %s: %s\n", time.Now().Format("15:04:05"), event, text)
		})

		rt := client.Realtime(&circle.RealtimeConfig{AutoReconnect: true})
		rt.OnConnected(func() {
			fmt.Println("Connected.")
		})
		rt.OnDisconnected(func(reason string) {
			fmt.Printf("Disconnected: %s\n", reason)
		})
		rt.OnReconnecting(func(attempt int, delay time.Duration) {
			fmt.Printf("Reconnecting (attempt %d) in %s...\n", attempt, delay)
		})

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		err := rt.Connect(ctx)
		cancel()
		if err != nil {
			return fmt.Errorf("connect failed: %w", err)
		}

		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		<-sig
		return rt.Disconnect()
	},
}
