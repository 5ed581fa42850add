package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitalsync/vitalsync/internal/identity"
)

var accountCmd = &cobra.Command{
	Use:   "account",
	Short: "Account identifier utilities",
}

var accountNewCmd = &cobra.Command{
	Use:   "new",
	Short: "Mint a new account identifier",
	RunE:  runAccountNew,
}

var accountCheckCmd = &cobra.Command{
	Use:   "check <account-id>",
	Short: "Validate and canonicalize an account identifier",
	Args:  cobra.ExactArgs(1),
	RunE:  runAccountCheck,
}

func init() {
	accountCmd.AddCommand(accountNewCmd)
	accountCmd.AddCommand(accountCheckCmd)
	rootCmd.AddCommand(accountCmd)
}

func runAccountNew(cmd *cobra.Command, _ []string) error {
	fmt.Fprintln(cmd.OutOrStdout(), identity.NewModern().String())
	return nil
}

func runAccountCheck(cmd *cobra.Command, args []string) error {
	id, err := identity.Parse(args[0])
	if err != nil {
		return err
	}
	kind := "modern"
	if id.Kind() == identity.Legacy {
		kind = "legacy"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", id.String(), kind)
	return nil
}
