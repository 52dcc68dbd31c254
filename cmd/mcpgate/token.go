package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/alfredjeanlab/mcpgate/internal/auth"
	"github.com/alfredjeanlab/mcpgate/internal/redisutil"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Mint and revoke gateway tokens, store delegated tokens",
	GroupID: "system",
	Long: `Administrative token operations. These talk to Redis directly and sign
with MCPGATE_JWT_SECRET, so run them where the gateway's environment is
available.`,
}

var tokenMintCmd = &cobra.Command{
	Use:   "mint",
	Short: "Mint a bearer token for a user",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		email, _ := cmd.Flags().GetString("email")
		provider, _ := cmd.Flags().GetString("provider")

		v, err := tokenVerifier(nil)
		if err != nil {
			return err
		}
		tok, err := v.Mint(user, email, auth.Provider(provider))
		if err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(map[string]string{"token": tok})
		}
		fmt.Println(tok)
		return nil
	},
}

var tokenRevokeCmd = &cobra.Command{
	Use:   "revoke <token>",
	Short: "Revoke a bearer token until it expires",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rdb, err := redisutil.Dial(cmd.Context(), os.Getenv("MCPGATE_REDIS_URL"))
		if err != nil {
			return err
		}
		defer rdb.Close()

		v, err := tokenVerifier(rdb)
		if err != nil {
			return err
		}
		if err := v.Revoke(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("revoking token: %w", err)
		}
		fmt.Println("revoked")
		return nil
	},
}

var tokenDelegateCmd = &cobra.Command{
	Use:   "delegate <access-token>",
	Short: "Store a delegated provider token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		user, _ := cmd.Flags().GetString("user")
		provider, _ := cmd.Flags().GetString("provider")
		if user == "" {
			return errors.New("--user is required")
		}

		rdb, err := redisutil.Dial(cmd.Context(), os.Getenv("MCPGATE_REDIS_URL"))
		if err != nil {
			return err
		}
		defer rdb.Close()

		v, err := tokenVerifier(rdb)
		if err != nil {
			return err
		}
		if err := v.StoreDelegatedToken(cmd.Context(), user, auth.Provider(provider), args[0]); err != nil {
			return fmt.Errorf("storing delegated token: %w", err)
		}
		fmt.Printf("stored %s token for %s\n", provider, user)
		return nil
	},
}

// tokenVerifier builds a verifier from the gateway's environment. rdb may be
// nil for operations that only sign.
func tokenVerifier(rdb redis.Cmdable) (*auth.Verifier, error) {
	secret := os.Getenv("MCPGATE_JWT_SECRET")
	if secret == "" {
		return nil, errors.New("MCPGATE_JWT_SECRET is not set")
	}
	ttl, err := time.ParseDuration(envOr("MCPGATE_JWT_TTL", "24h"))
	if err != nil {
		return nil, fmt.Errorf("MCPGATE_JWT_TTL: %w", err)
	}
	return auth.NewVerifier(rdb, secret, ttl, nil), nil
}

func init() {
	tokenMintCmd.Flags().String("user", "", "user id (required)")
	tokenMintCmd.Flags().String("email", "", "user email")
	tokenMintCmd.Flags().String("provider", "", "identity provider recorded in the token")
	_ = tokenMintCmd.MarkFlagRequired("user")

	tokenDelegateCmd.Flags().String("user", "", "user id the token belongs to")
	tokenDelegateCmd.Flags().String("provider", string(auth.ProviderFacebook), "provider: facebook or pipeboard")

	tokenCmd.AddCommand(tokenMintCmd, tokenRevokeCmd, tokenDelegateCmd)
}
