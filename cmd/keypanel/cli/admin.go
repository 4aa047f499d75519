package cli

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/keypanel/keypanel/internal/config"
	"github.com/keypanel/keypanel/internal/service"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Admin access to app management",
		Long: `App management endpoints (/api/apps*, /api/settings) require an admin
bearer token when auth.jwt_secret is set. Use these commands to mint one.`,
	}

	cmd.AddCommand(newAdminTokenCmd())

	return cmd
}

// ---------- admin token ----------

func newAdminTokenCmd() *cobra.Command {
	var (
		subject string
		ttl     string
		prompt  bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an admin bearer token",
		Example: `  keypanel admin token
  keypanel admin token --subject ci --ttl 1h
  keypanel admin token --prompt      # read the JWT secret from the terminal`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdminToken(subject, ttl, prompt)
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "admin", "Subject recorded in the token")
	cmd.Flags().StringVar(&ttl, "ttl", "", "Token lifetime, e.g. 12h or 7d (default auth.token_ttl)")
	cmd.Flags().BoolVar(&prompt, "prompt", false, "Prompt for the JWT secret instead of reading the config")

	return cmd
}

func runAdminToken(subject, ttlFlag string, prompt bool) error {
	secret := viper.GetString("auth.jwt_secret")
	if prompt {
		fmt.Fprint(os.Stderr, "JWT secret: ")
		b, err := term.ReadPassword(int(os.Stdin.Fd()))
		if err != nil {
			return fmt.Errorf("failed to read secret: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		secret = strings.TrimSpace(string(b))
	}
	if secret == "" {
		return fmt.Errorf("auth.jwt_secret is not set; admin endpoints are open and need no token")
	}

	if ttlFlag == "" {
		ttlFlag = viper.GetString("auth.token_ttl")
	}
	ttl, err := config.ParseDuration(ttlFlag)
	if err != nil {
		return fmt.Errorf("--ttl: %w", err)
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	token, err := service.NewAuthService(nil, secret).IssueAdminJWT(subject, ttl)
	if err != nil {
		return fmt.Errorf("issue token: %w", err)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "Expires %s. Send as: Authorization: Bearer <token>\n",
		time.Now().Add(ttl).Format(time.RFC3339))
	return nil
}
