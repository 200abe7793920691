package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/NicolasHaas/posterchat/pkg/account"
	"github.com/NicolasHaas/posterchat/pkg/server"
	"github.com/NicolasHaas/posterchat/pkg/version"
	"github.com/spf13/cobra"
)

func newCreateSuperuserCmd(opts *globalOptions) *cobra.Command {
	var req account.SignupRequest

	c := &cobra.Command{
		Use:   "createsuperuser",
		Short: "Create a staff account",
		Long: `Create a staff account. The same validation rules as signup apply.
Without --password the password is read from the first line of stdin.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if req.Password == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read password: %w", err)
				}
				req.Password = strings.TrimRight(line, "\r\n")
			}
			req.PasswordConfirm = req.Password

			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			u, err := account.NewService(st).CreateSuperuser(context.Background(), req)
			var verr *account.ValidationError
			if errors.As(err, &verr) {
				fields := make([]string, 0, len(verr.Fields))
				for f := range verr.Fields {
					fields = append(fields, f)
				}
				sort.Strings(fields)
				for _, f := range fields {
					_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%s: %s\n", f, verr.Fields[f])
				}
				return ErrInvalid
			}
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "created superuser %s (id %d)\n", u.Username, u.ID)
			return nil
		},
	}

	c.Flags().StringVar(&req.Email, "email", "", "Email address")
	c.Flags().StringVar(&req.FirstName, "first-name", "", "First name")
	c.Flags().StringVar(&req.LastName, "last-name", "", "Last name")
	c.Flags().StringVar(&req.Username, "username", "", "Username")
	c.Flags().StringVar(&req.Password, "password", "", "Password (read from stdin if empty)")
	for _, name := range []string{"email", "first-name", "last-name", "username"} {
		if err := c.MarkFlagRequired(name); err != nil {
			panic(err)
		}
	}
	return c
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:       "export users|conferences",
		Short:     "Export users or conferences as YAML",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"users", "conferences"},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			ctx := context.Background()
			var data []byte
			switch args[0] {
			case "users":
				data, err = server.ExportUsersYAML(ctx, st)
			case "conferences":
				data, err = server.ExportConferencesYAML(ctx, st)
			}
			if err != nil {
				return fmt.Errorf("export %s: %w", args[0], err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newImportCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import conferences FILE",
		Short: "Create conferences and memberships from a YAML file",
		Args: func(cmd *cobra.Command, args []string) error {
			if err := cobra.ExactArgs(2)(cmd, args); err != nil {
				return err
			}
			if args[0] != "conferences" {
				return fmt.Errorf("can only import conferences, not %q", args[0])
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := opts.openStore()
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			n, err := server.LoadConferencesFromYAML(context.Background(), args[1], st)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d conferences\n", n)
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "posterctl", version.Full())
		},
	}
}
