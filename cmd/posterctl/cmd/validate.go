package cmd

import (
	"fmt"

	"github.com/NicolasHaas/posterchat/pkg/account"
	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FIELD VALUE",
		Short: "Validate a name, first_name, last_name, username or email",
		Long: `Validate runs the signup validator for one field and prints either
"valid" or the rejection message. The exit status is 1 when the value is
rejected.`,
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"name", "first_name", "last_name", "username", "email"},
		RunE: func(cmd *cobra.Command, args []string) error {
			res, ok := account.ValidateField(args[0], args[1])
			if !ok {
				return fmt.Errorf("unknown field %q", args[0])
			}
			out := cmd.OutOrStdout()
			if res.Valid() {
				_, _ = fmt.Fprintln(out, "valid")
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s (%s)\n", res.Message(), res.Reason)
			return ErrInvalid
		},
	}
}
