package cmd

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/frahmantamala/billpay-relay/internal/auth"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "API client token commands",
}

var issueTokenCmd = &cobra.Command{
	Use:   "issue",
	Short: "Mint a bearer token for an API client",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := LoadConfig(configPath)
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		tokens := auth.NewJWTTokenGenerator(cfg.Security.APITokenSecret, cfg.Security.APITokenTTL)
		token, expiresAt, err := tokens.GenerateClientToken(tokenClientID)
		if err != nil {
			log.Fatalf("failed to issue token: %v", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(auth.IssuedToken{ClientID: tokenClientID, Token: token, ExpiresAt: expiresAt})
	},
}

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Callback secret commands",
}

var hashSecretCmd = &cobra.Command{
	Use:   "hash [secret]",
	Short: "Print a bcrypt hash for security.callback_secret_hash",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hash, err := auth.HashSecret(args[0], secretCost)
		if err != nil {
			log.Fatalf("failed to hash secret: %v", err)
		}
		fmt.Println(hash)
	},
}

var (
	tokenClientID string
	secretCost    int
)

func init() {
	issueTokenCmd.Flags().StringVar(&tokenClientID, "client", "", "API client id carried in the token")
	_ = issueTokenCmd.MarkFlagRequired("client")
	hashSecretCmd.Flags().IntVar(&secretCost, "cost", 12, "bcrypt cost")

	tokenCmd.AddCommand(issueTokenCmd)
	secretCmd.AddCommand(hashSecretCmd)

	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(secretCmd)
}
