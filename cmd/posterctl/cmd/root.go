// Package cmd implements the posterctl administration commands.
package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/NicolasHaas/posterchat/pkg/datastore"
	"github.com/NicolasHaas/posterchat/pkg/logging"
	"github.com/spf13/cobra"
)

// ErrInvalid is returned by validate when the value is rejected.
var ErrInvalid = errors.New("value is invalid")

type globalOptions struct {
	dbPath    string
	logLevel  string
	logFormat string
}

func (o *globalOptions) openStore() (*datastore.ProviderFactory, error) {
	st, err := datastore.NewProviderFactory(o.dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return st, nil
}

// NewRootCmd builds the posterctl command tree.
func NewRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "posterctl",
		Short: "PosterChat administration tool",
		Long: `posterctl manages a PosterChat database directly.

Commands:
  validate         - check a name, username or email against the signup rules
  createsuperuser  - create a staff account
  export           - dump users or conferences as YAML
  import           - load conferences from YAML
  version          - print build information`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return logging.Setup(logging.Options{
				Level:  opts.logLevel,
				Format: opts.logFormat,
				Output: cmd.ErrOrStderr(),
			})
		},
	}

	root.PersistentFlags().StringVar(&opts.dbPath, "db", "posterchat.db", "SQLite database file path")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "Log level: "+logging.LevelNames())
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json")

	root.AddCommand(
		newValidateCmd(),
		newCreateSuperuserCmd(opts),
		newExportCmd(opts),
		newImportCmd(opts),
		newVersionCmd(),
	)
	return root
}

// Execute runs posterctl and returns the process exit code.
func Execute() int {
	err := NewRootCmd().Execute()
	if err == nil {
		return 0
	}
	if !errors.Is(err, ErrInvalid) {
		fmt.Fprintf(os.Stderr, "posterctl: %v\n", err)
	}
	return 1
}
