package reconcile

import "dirsync/internal/api"

// Messages is the catalog of user-facing strings a job formats its
// status, warning and error messages from. It is captured at Init time
// in the caller's locale; the engine itself never consults a global
// resource.
type Messages struct {
	PrepareSettings  string
	CheckConnection  string
	SyncingUsers     string
	SyncingGroups    string
	SyncingAvatars   string
	SyncingRights    string
	TurningOff       string
	Disconnecting    string
	Completed        string
	Canceled         string
	CertificateAsk   string
	SelfRemoveNotice string
	OwnerKeptNotice  string
	RightLostNotice  string

	// Errors maps every error code to its user-facing message.
	Errors map[api.ErrorCode]string
}

// ErrorText returns the user-facing message for a code, falling back to
// the internal-error message for unknown codes.
func (m Messages) ErrorText(code api.ErrorCode) string {
	if msg, ok := m.Errors[code]; ok {
		return msg
	}
	return m.Errors[api.CodeInternal]
}

// DefaultMessages returns the English catalog.
func DefaultMessages() Messages {
	return Messages{
		PrepareSettings:  "Preparing settings",
		CheckConnection:  "Checking connection to the directory server",
		SyncingUsers:     "Synchronizing users",
		SyncingGroups:    "Synchronizing groups",
		SyncingAvatars:   "Synchronizing user photos",
		SyncingRights:    "Synchronizing access rights",
		TurningOff:       "Turning off directory integration",
		Disconnecting:    "Disconnecting from the directory server",
		Completed:        "Completed",
		Canceled:         "Canceled",
		CertificateAsk:   "The server certificate is not trusted; confirm it to continue",
		SelfRemoveNotice: "You attempted to remove your own account; it was kept active",
		OwnerKeptNotice:  "The portal owner %q is no longer in the directory; the account was kept active",
		RightLostNotice:  "You are about to lose the %q access right",
		Errors: map[api.ErrorCode]string{
			api.CodeSettings:           "The settings are incomplete or invalid",
			api.CodeCantGetSettings:    "The directory settings could not be loaded",
			api.CodeSaveSettings:       "The settings could not be saved",
			api.CodeConnect:            "The directory server could not be reached",
			api.CodeWrongCredentials:   "The server rejected the login or password",
			api.CodeBadSearchBase:      "The search base was not found on the server",
			api.CodeInvalidFilter:      "A search filter is invalid",
			api.CodeStrongAuthRequired: "The server requires a secure connection",
			api.CodeDomainNotFound:     "The directory domain could not be resolved",
			api.CodeCertificateRequest: "The server certificate requires confirmation",
			api.CodeUsersNotFound:      "No users were found in the directory",
			api.CodeGroupsNotFound:     "No groups were found in the directory",
			api.CodeQuotaExceeded:      "The portal user quota has been reached",
			api.CodeFormat:             "A directory record contains malformed data",
			api.CodeInternal:           "An unexpected error occurred during synchronization",
		},
	}
}
