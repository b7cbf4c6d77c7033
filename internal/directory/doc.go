// Package directory implements api.DirectorySource over the LDAP
// protocol using go-ldap.
//
// The client owns connection management (plain, LDAPS, StartTLS), the
// certificate confirmation handshake for untrusted server certificates,
// paged searches for users and groups, and the attribute mapping that
// turns raw entries into the typed snapshots the engine consumes.
package directory
