package cmd

import (
	"os"

	"dirsync/pkg/logging"

	"github.com/spf13/cobra"
)

var (
	// flagDataDir is the directory the per-tenant settings, rights and
	// avatar-hash records live in.
	flagDataDir string

	// flagTenant selects the tenant a command operates on.
	flagTenant string

	// flagLogLevel filters log output (debug, info, warn, error).
	flagLogLevel string
)

// rootCmd is the entry point when the application is called without any
// subcommands.
var rootCmd = &cobra.Command{
	Use:   "dirsync",
	Short: "Reconcile a directory service into the local identity store",
	Long: `dirsync converges tenant-scoped local users, groups, photos and
access rights onto the population reported by an LDAP directory.

Runs come in two flavors: 'sync' applies the computed changes, 'plan'
only reports what a run would change. 'serve' keeps a worker pool
running and re-plans automatically when settings files change.`,
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(flagLogLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command. Called from main
// to inject the build-time version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute runs the CLI. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "dirsync version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "data", "Directory holding per-tenant settings and snapshots")
	rootCmd.PersistentFlags().StringVar(&flagTenant, "tenant", "default", "Tenant to operate on")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(newVersionCmd())
}
