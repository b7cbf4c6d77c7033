// Package reconcile implements the directory reconciliation engine: a
// multi-phase, cancellable batch job that converges the tenant-scoped
// local identity store onto the population reported by an external
// directory service.
//
// One Job drives a single run through its phases — settings validation,
// connectivity check, user/group sync, avatar sync, access-rights sync —
// publishing progress snapshots along the way and ending in exactly one
// terminal state. A run either applies its changes through the local
// store or, in dry-run mode, records every proposed mutation in a
// change ledger and reports it instead.
//
// Per-entity failures (one user, one group, one photo) are logged and
// skipped; only settings, connectivity, quota and format errors abort a
// run. Self-protection invariants guarantee that the user who triggered
// the run cannot demote or lock out themselves, and that the tenant
// owner is never terminated.
package reconcile
