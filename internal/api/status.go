package api

// JobStatus is the snapshot surfaced to status pollers. It is a plain
// value: reading it never blocks a running job.
type JobStatus struct {
	// ID is the job identifier.
	ID string `json:"id"`

	// TenantID is the tenant the job belongs to.
	TenantID string `json:"tenantId"`

	// OperationKind echoes the kind the job was submitted with.
	OperationKind OperationKind `json:"operationKind"`

	// Percentage is the job progress, capped at 100.
	Percentage int `json:"percents"`

	// Finished reports whether the job reached a terminal state.
	Finished bool `json:"completed"`

	// StatusMessage is the last human-readable phase message. For a
	// finished dry-run job it carries the serialized change report.
	StatusMessage string `json:"status"`

	// SourceDetail names the item currently being processed.
	SourceDetail string `json:"source"`

	// Error is the user-facing error code, empty on success.
	Error string `json:"error"`

	// Warning is a non-aborting notice (self-protection messages). It
	// is cleared after being read once.
	Warning string `json:"warning"`

	// CertificateConfirmation carries the token the caller must echo
	// back to accept an untrusted server certificate. Empty means no
	// confirmation is pending.
	CertificateConfirmation string `json:"certificateConfirmation"`
}
