package api

// OperationKind identifies what a reconciliation run does with its
// computed changes (apply them or only report them) and which scope
// triggered it (saving new settings or a plain sync).
type OperationKind string

const (
	// OpSaveApply persists new settings and applies a full sync.
	OpSaveApply OperationKind = "save"

	// OpSyncApply applies a sync with the already persisted settings.
	OpSyncApply OperationKind = "sync"

	// OpSaveDryRun reports what a save + sync would change.
	OpSaveDryRun OperationKind = "saveTest"

	// OpSyncDryRun reports what a sync would change.
	OpSyncDryRun OperationKind = "syncTest"
)

// DryRun reports whether the kind only records proposed changes.
func (k OperationKind) DryRun() bool {
	return k == OpSaveDryRun || k == OpSyncDryRun
}

// Apply reports whether the kind performs real mutations.
func (k OperationKind) Apply() bool { return !k.DryRun() }

// Save reports whether the kind persists incoming settings.
func (k OperationKind) Save() bool {
	return k == OpSaveApply || k == OpSaveDryRun
}

// DryRunTwin returns the dry-run counterpart of an apply kind. For
// dry-run kinds it returns the kind unchanged.
func (k OperationKind) DryRunTwin() OperationKind {
	switch k {
	case OpSaveApply:
		return OpSaveDryRun
	case OpSyncApply:
		return OpSyncDryRun
	default:
		return k
	}
}

// Valid reports whether k is one of the four defined kinds.
func (k OperationKind) Valid() bool {
	switch k {
	case OpSaveApply, OpSyncApply, OpSaveDryRun, OpSyncDryRun:
		return true
	}
	return false
}
