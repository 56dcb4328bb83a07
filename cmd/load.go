package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/credentials"
)

func newLoadCmd() *cobra.Command {
	var (
		apiKey    string
		authToken string
		skip      bool
	)

	c := &cobra.Command{
		Use:   "load",
		Short: "Store Resy credentials copied from a logged-in browser session",
		Long: `Prompts for the Resy API key and auth token (the "authorization" and
"x-resy-auth-token" request headers of a logged-in resy.com session), looks up
the default payment method and seals everything into the credentials file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			store, err := cfg.Store()
			if err != nil {
				if errors.Is(err, credentials.ErrNoKeys) {
					return fmt.Errorf("%w: run `resysnipe keys` or set CRED_PASSPHRASE", err)
				}
				return err
			}

			out := cmd.OutOrStdout()
			in := bufio.NewReader(cmd.InOrStdin())
			if apiKey == "" {
				if apiKey, err = prompt(in, out, "Resy API key"); err != nil {
					return err
				}
			}
			if authToken == "" {
				if authToken, err = prompt(in, out, "Resy auth token"); err != nil {
					return err
				}
			}
			creds := credentials.Credentials{
				APIKey:    strings.TrimPrefix(apiKey, `ResyAPI api_key="`),
				AuthToken: authToken,
			}
			creds.APIKey = strings.TrimSuffix(creds.APIKey, `"`)

			if !skip {
				client, err := newClient(cfg, creds)
				if err != nil {
					return err
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
				defer cancel()
				if creds.PaymentMethodID, err = client.PaymentMethodID(ctx); err != nil {
					return fmt.Errorf("verify credentials: %w", err)
				}
			}

			if err := store.Save(creds); err != nil {
				return err
			}
			fmt.Fprintf(out, "saved credentials to %s (payment_method_id=%d)\n", store.Path(), creds.PaymentMethodID)
			return nil
		},
	}

	c.Flags().StringVar(&apiKey, "api-key", "", "resy api key (prompted when empty)")
	c.Flags().StringVar(&authToken, "auth-token", "", "resy auth token (prompted when empty)")
	c.Flags().BoolVar(&skip, "skip", false, "skip verifying the credentials and the payment method lookup")
	return c
}

func prompt(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprintf(out, "%s: ", label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", fmt.Errorf("read %s: %w", strings.ToLower(label), err)
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return "", fmt.Errorf("%s required", strings.ToLower(label))
	}
	return line, nil
}
