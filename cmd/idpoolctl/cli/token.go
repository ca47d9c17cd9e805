// token.go - mints a bearer token for the diagnostics server's JWT-gated
// routes (POST /sweep and GET /pools/{endpoint}).
package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/id-pointer/id-pointer-pool-go/internal/diagnostics"
)

var (
	tokenSubject string
	tokenTTL     time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue a diagnostics bearer token signed with the configured JWT secret",
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenSubject, "subject", "idpoolctl-operator", "token subject claim")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", time.Hour, "token lifetime")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	if cfg.Diagnostics.JWTSecret == "" {
		return fmt.Errorf("diagnostics.jwt_secret is not configured")
	}
	tok, err := diagnostics.IssueToken(cfg.Diagnostics.JWTSecret, tokenSubject, tokenTTL)
	if err != nil {
		return err
	}
	fmt.Println(tok)
	return nil
}
