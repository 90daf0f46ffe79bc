package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var loginUserID string

func init() {
	loginCmd.Flags().StringVar(&loginUserID, "user", "", "user id of the token's owner")
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login <token>",
	Short: "Store bearer token in ~/.circle/config.toml",
	Long:  "Authenticate the Circle CLI by storing your bearer token in the local configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		cfg.Auth.Token = args[0]
		if loginUserID != "" {
			cfg.Auth.UserID = loginUserID
		}

		if err := saveConfig(cfg); err != nil {
			return fmt.Errorf("failed to save config: %w", err)
		}

		path, _ := configPath()
		fmt.Printf("Token saved to %s\n", path)
		return nil
	},
}
