package cmd

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/example/resy-sniper/internal/credentials"
)

func newKeysCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keys",
		Short: "Generate CRED_HASH_KEY and CRED_BLOCK_KEY values (base64)",
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := credentials.GenerateKeys()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "export CRED_HASH_KEY=%s\n", base64.StdEncoding.EncodeToString(k.Hash))
			fmt.Fprintf(out, "export CRED_BLOCK_KEY=%s\n", base64.StdEncoding.EncodeToString(k.Block))
			return nil
		},
	}
}
