// Package coordinator schedules reconciliation jobs across tenants.
//
// It owns a deduplicating work queue and a small worker pool. At most
// one job runs per tenant: resubmitting the kind that is already
// running joins the caller onto the existing job, submitting a
// conflicting kind is rejected. Finished jobs stay queryable until the
// next submission for the tenant evicts them.
//
// A SettingsWatcher can be attached to submit a dry-run automatically
// whenever a tenant's settings file changes on disk.
package coordinator
