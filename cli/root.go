// Package cli provides the operator command-line interface for the
// knowledge-base engine, grounded on the teacher's cli/root.go: a cobra
// root command with cobra.OnInitialize(initConfig) wiring the global viper
// instance to KB_-prefixed environment variables. Unlike the teacher, this root command never starts an HTTP
// server itself — cmd/kbd owns the daemon lifecycle (toolsrv + task
// pools); this package exposes exactly the five operator commands spec
// section 6's CLI row names: init-index, migrate, cleanup-orphans,
// reindex-version <id>, rotate-tokens.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// cfgFile holds the path to the configuration file specified via the
// --config flag, mirroring the teacher's root.go cfgFile variable.
var cfgFile string

// RootCmd is the operator CLI's entry point. Run is left nil: with no
// subcommand given, cobra prints usage rather than falling into a
// server-start path the way the teacher's RootCmd.Run does, since this
// CLI has no default action of its own.
var RootCmd = &cobra.Command{
	Use:   "kbctl",
	Short: "operator CLI for the knowledge-base engine",
	Long: `kbctl is the operator control surface for the knowledge-base engine.

It provisions and repairs the engine's external stores and housekeeping
state: creating the OpenSearch index, running relational schema
migrations, reconciling orphaned rows left by interrupted pipeline runs,
forcing a selective re-index of one document version, and rotating tool
tokens issued to automation callers.

Configuration is read from (in increasing priority) built-in defaults, a
config file named by --config, and KB_-prefixed environment variables.`,
}

func init() {
	cobra.OnInitialize(initConfig)
	RootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file path (default: none, environment/defaults only)")

	RootCmd.AddCommand(initIndexCmd)
	RootCmd.AddCommand(migrateCmd)
	RootCmd.AddCommand(cleanupOrphansCmd)
	RootCmd.AddCommand(reindexVersionCmd)
	RootCmd.AddCommand(rotateTokensCmd)
}

// initConfig enables KB_-prefixed automatic environment lookups for any
// command that reads viper directly, mirroring the teacher's
// initConfig. Each subcommand below builds its own *config.Config via
// config.Load(cfgFile) rather than reading viper ad hoc, since
// config.Load already layers file/env/defaults the way spec section 9
// and the ambient config stack require.
func initConfig() {
	viper.SetEnvPrefix("KB")
	viper.AutomaticEnv()
}

// Execute runs the root command, exiting with spec section 6's documented
// exit codes: 0 on success, 2 on user error (a *userError a command
// returns), 1 on internal error (everything else). Argument and flag
// parse errors raised by cobra itself are not userErrors and exit 1.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		if isUsageError(err) {
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// isUsageError reports whether err originated from a command's own
// argument validation (as opposed to a downstream service call failing),
// the distinction spec section 6's exit-code table draws between "user
// error" (2) and "internal error" (1). Commands that detect a bad
// user-supplied argument return a *userError from RunE so Execute can
// select the right exit code.
func isUsageError(err error) bool {
	_, ok := err.(*userError)
	return ok
}

// userError marks an error as a user-input mistake (bad flag value,
// missing required argument) rather than an internal failure.
type userError struct{ msg string }

func (e *userError) Error() string { return e.msg }

func newUserError(format string, args ...any) error {
	return &userError{msg: fmt.Sprintf(format, args...)}
}
