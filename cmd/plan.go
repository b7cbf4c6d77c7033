package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"dirsync/internal/api"
	"dirsync/internal/coordinator"
	"dirsync/internal/ledger"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	planSave        bool
	planConfirmCert string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Report what a reconciliation run would change",
	Long: `Runs a full reconciliation in dry-run mode and prints the changes an
apply run would make, without touching the local identity store.`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd.Context())
	coord, _ := newCoordinator(1)
	coord.Start(ctx)
	defer coord.Stop()

	kind := api.OpSyncDryRun
	if planSave {
		kind = api.OpSaveDryRun
	}

	if _, err := coord.Submit(coordinator.SubmitRequest{
		Tenant:        api.Tenant{ID: flagTenant},
		Kind:          kind,
		ConfirmedCert: planConfirmCert,
	}); err != nil {
		return err
	}
	coord.Wait(flagTenant)

	status := coord.Status(flagTenant)
	if status == nil {
		return fmt.Errorf("job for tenant %s disappeared", flagTenant)
	}
	if status.Warning != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", status.Warning)
	}
	if status.CertificateConfirmation != "" {
		fmt.Fprintf(cmd.OutOrStdout(),
			"The server certificate is not trusted.\nFingerprint: %s\nRe-run with --confirm-cert %s to accept it.\n",
			status.CertificateConfirmation, status.CertificateConfirmation)
		return nil
	}
	if status.Error != "" {
		return errors.New(status.Error)
	}

	var records []ledger.Record
	if err := json.Unmarshal([]byte(status.StatusMessage), &records); err != nil {
		return fmt.Errorf("parsing change report: %w", err)
	}
	renderPlan(cmd.OutOrStdout(), records)
	return nil
}

// renderPlan prints the proposed changes as a table, one row per change.
func renderPlan(out io.Writer, records []ledger.Record) {
	if len(records) == 0 {
		fmt.Fprintln(out, "No changes.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Change", "Entity", "Subject", "Before", "After"})
	for _, rec := range records {
		t.AppendRow(table.Row{rec.Kind, rec.Entity, rec.Subject, rec.Before, rec.After})
	}
	t.AppendFooter(table.Row{fmt.Sprintf("%d changes", len(records)), "", "", "", ""})
	t.Render()
}

func init() {
	rootCmd.AddCommand(planCmd)

	planCmd.Flags().BoolVar(&planSave, "save", false, "Plan a save run instead of a plain sync")
	planCmd.Flags().StringVar(&planConfirmCert, "confirm-cert", "", "Accept the server certificate with this fingerprint")
}
