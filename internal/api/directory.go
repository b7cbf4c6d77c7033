package api

import "context"

// ConnectStatus classifies the outcome of binding to the directory.
type ConnectStatus int

const (
	// ConnectOK means the bind succeeded.
	ConnectOK ConnectStatus = iota

	// ConnectWrongCredentials means the server rejected the bind DN or
	// password.
	ConnectWrongCredentials

	// ConnectError means the server could not be reached or the
	// connection failed at the transport level.
	ConnectError

	// ConnectBadSearchBase means the configured base DN does not exist.
	ConnectBadSearchBase

	// ConnectInvalidFilter means a configured search filter is
	// syntactically invalid.
	ConnectInvalidFilter

	// ConnectStrongAuthRequired means the server demands a stronger
	// authentication mechanism (typically TLS before bind).
	ConnectStrongAuthRequired

	// ConnectDomainNotFound means the configured domain could not be
	// resolved.
	ConnectDomainNotFound

	// ConnectCertificateRequested means the server presented a
	// certificate that is not trusted yet. The result carries a
	// confirmation token the caller must echo back on resubmission to
	// accept the certificate.
	ConnectCertificateRequested
)

// ConnectResult is the outcome of DirectorySource.Bind.
type ConnectResult struct {
	Status ConnectStatus

	// CertificateToken is set when Status is ConnectCertificateRequested.
	CertificateToken string

	// Detail is a server-side diagnostic, logged but never shown to
	// end users.
	Detail string
}

// DirectorySource yields the current population of directory users and
// groups for one configured connection. Implementations own the wire
// protocol; the engine only consumes typed snapshots.
type DirectorySource interface {
	// Bind authenticates the connection with the configured service
	// credentials. It classifies failures instead of returning an error
	// so the engine can map them to user-facing codes.
	Bind(ctx context.Context, login, password string) ConnectResult

	// ListUsers returns every directory user matching the configured
	// user filter.
	ListUsers(ctx context.Context) ([]DirectoryUser, error)

	// ListGroups returns every directory group matching the configured
	// group filter.
	ListGroups(ctx context.Context) ([]DirectoryGroup, error)

	// ResolveGroupMembers materializes the member list of a group into
	// directory user snapshots.
	ResolveGroupMembers(ctx context.Context, group DirectoryGroup) ([]DirectoryUser, error)

	// FindGroupsByNamePattern returns the directory groups whose name
	// matches any of the comma-separated patterns. Matching is
	// case-insensitive; patterns are trimmed.
	FindGroupsByNamePattern(ctx context.Context, patterns string) ([]DirectoryGroup, error)

	// Close releases the underlying connection.
	Close() error
}
