package cmd

import (
	"errors"
	"fmt"
	"time"

	"dirsync/internal/api"
	"dirsync/internal/coordinator"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"
)

var (
	// syncSave persists the settings before syncing (the save kind).
	syncSave bool

	// syncConfirmCert echoes a certificate token from a previous run to
	// accept the untrusted server certificate.
	syncConfirmCert string

	// syncActor is the local user id the run is attributed to for the
	// self-protection checks.
	syncActor string
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run a reconciliation and apply its changes",
	Long: `Connects to the configured directory, converges the tenant's local
users, groups, photos and access rights onto the directory population
and reports progress while doing so.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())
	coord, _ := newCoordinator(1)
	coord.Start(ctx)
	defer coord.Stop()

	kind := api.OpSyncApply
	if syncSave {
		kind = api.OpSaveApply
	}

	if _, err := coord.Submit(coordinator.SubmitRequest{
		Tenant:        api.Tenant{ID: flagTenant},
		Kind:          kind,
		ActorID:       syncActor,
		ConfirmedCert: syncConfirmCert,
	}); err != nil {
		return err
	}

	sp := spinner.New(spinner.CharSets[14], 120*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
	sp.Start()

	var final api.JobStatus
	var warnings []string
	for {
		status := coord.Status(flagTenant)
		if status == nil {
			sp.Stop()
			return fmt.Errorf("job for tenant %s disappeared", flagTenant)
		}
		sp.Suffix = fmt.Sprintf("  %3d%% %s", status.Percentage, status.StatusMessage)
		if status.Warning != "" {
			warnings = append(warnings, status.Warning)
		}
		if status.Finished {
			final = *status
			break
		}

		select {
		case <-ctx.Done():
			coord.Cancel(flagTenant)
			time.Sleep(50 * time.Millisecond)
		case <-time.After(200 * time.Millisecond):
		}
	}
	sp.Stop()

	for _, w := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	if final.CertificateConfirmation != "" {
		fmt.Fprintf(cmd.OutOrStdout(),
			"The server certificate is not trusted.\nFingerprint: %s\nRe-run with --confirm-cert %s to accept it.\n",
			final.CertificateConfirmation, final.CertificateConfirmation)
		return nil
	}
	if final.Error != "" {
		return errors.New(final.Error)
	}

	fmt.Fprintln(cmd.OutOrStdout(), final.StatusMessage)
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)

	syncCmd.Flags().BoolVar(&syncSave, "save", false, "Persist the settings before syncing")
	syncCmd.Flags().StringVar(&syncConfirmCert, "confirm-cert", "", "Accept the server certificate with this fingerprint")
	syncCmd.Flags().StringVar(&syncActor, "actor", "", "Local user id the run is attributed to")
}
