// Package api defines the contracts shared between the reconciliation
// engine and its collaborators.
//
// The engine itself lives in internal/reconcile and is orchestrated by
// internal/coordinator. Everything it talks to — the external directory
// service, the tenant-scoped local identity store — is expressed here as
// an interface so that implementations (internal/directory,
// internal/store) stay swappable and tests can substitute fakes.
//
// The package also carries the small shared vocabulary of the system:
// operation kinds, access rights, the job status DTO surfaced to pollers,
// and the reconcile error taxonomy.
//
// Design note: packages must depend on api, never on each other's
// concrete types, to keep the dependency graph acyclic.
package api
