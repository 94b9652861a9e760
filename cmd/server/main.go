package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/droplets-realm/api/internal/auth"
	"github.com/droplets-realm/api/internal/database"
)

func main() {
	// Optional .env for local runs
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("[API] Failed to load .env: %v", err)
	}

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "droplets",
		Short: "Droplets of Creation world server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
		SilenceUsage: true,
	}
	root.AddCommand(newServeCmd(), newMigrateCmd(), newTokenCmd())
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the world room",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context())
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create database tables and seed the world row",
		RunE: func(cmd *cobra.Command, args []string) error {
			dbConfig, err := database.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			db, err := database.NewConnection(dbConfig)
			if err != nil {
				return err
			}
			defer db.Close()
			return db.InitSchema()
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		userID int64
		wallet string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID <= 0 || wallet == "" {
				return fmt.Errorf("--user and --wallet are required")
			}
			authConfig, err := auth.LoadConfigFromEnv()
			if err != nil {
				return err
			}
			token, err := auth.NewManager(authConfig).Issue(userID, wallet)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().Int64Var(&userID, "user", 0, "user id")
	cmd.Flags().StringVar(&wallet, "wallet", "", "wallet address")
	return cmd
}
