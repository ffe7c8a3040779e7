package main

import (
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/jonathan/purchase-tracker/internal/config"
	"github.com/jonathan/purchase-tracker/internal/server"
)

var (
	tokenUserID string
	tokenAdmin  bool
)

var issueTokenCmd = &cobra.Command{
	Use:   "issue-token",
	Short: "Issue a session token for local development",
	Long:  `Sign a token with JWT_SECRET for the given user, bypassing login.`,
	RunE:  runIssueToken,
}

func init() {
	issueTokenCmd.Flags().StringVar(&tokenUserID, "user-id", "", "User ID to issue the token for (required)")
	issueTokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "Mark the token as an admin session")
	_ = issueTokenCmd.MarkFlagRequired("user-id")
	rootCmd.AddCommand(issueTokenCmd)
}

func runIssueToken(cmd *cobra.Command, _ []string) error {
	userID, err := uuid.Parse(tokenUserID)
	if err != nil {
		return fmt.Errorf("invalid --user-id: %w", err)
	}
	jwtCfg, err := config.NewJWTConfig(os.Getenv)
	if err != nil {
		return err
	}

	token, err := server.NewJWTService(jwtCfg).GenerateToken(userID, tokenAdmin)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
