// Package ledger accumulates the mutations a dry-run reconciliation
// would perform, so they can be reported instead of applied.
package ledger

import (
	"encoding/json"
	"fmt"
	"sync"
)

// ChangeKind names one kind of proposed mutation.
type ChangeKind string

const (
	ChangeAddUser      ChangeKind = "addUser"
	ChangeUpdateUser   ChangeKind = "updateUser"
	ChangeRemoveUser   ChangeKind = "removeUser"
	ChangeAddGroup     ChangeKind = "addGroup"
	ChangeUpdateGroup  ChangeKind = "updateGroup"
	ChangeRemoveGroup  ChangeKind = "removeGroup"
	ChangeAddMember    ChangeKind = "addMember"
	ChangeRemoveMember ChangeKind = "removeMember"
	ChangeSkipGroup    ChangeKind = "skipGroup"
)

// EntityKind names what a change applies to.
type EntityKind string

const (
	EntityUser       EntityKind = "user"
	EntityGroup      EntityKind = "group"
	EntityMembership EntityKind = "membership"
)

// Record is one proposed mutation. It is never applied to the local
// store; apply runs produce the equivalent mutation directly instead.
type Record struct {
	Kind   ChangeKind `json:"kind"`
	Entity EntityKind `json:"entity"`

	// Subject names the affected entity (login, group name, or
	// "user -> group" for memberships).
	Subject string `json:"subject"`

	// Before and After are human-readable snapshots of the changed
	// fields. Either may be empty depending on the kind.
	Before string `json:"before,omitempty"`
	After  string `json:"after,omitempty"`
}

// Ledger is an ordered, append-only accumulator of proposed changes for
// one dry-run. It is safe for use from the run's goroutine only; runs
// never share a ledger.
type Ledger struct {
	mu      sync.Mutex
	records []Record
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// Append adds one record to the ledger.
func (l *Ledger) Append(rec Record) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = append(l.records, rec)
}

// Merge appends every record from another ledger, preserving order.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	for _, rec := range other.Records() {
		l.Append(rec)
	}
}

// Records returns a copy of the accumulated records in append order.
func (l *Ledger) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of accumulated records.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// CountByKind tallies records per change kind.
func (l *Ledger) CountByKind() map[ChangeKind]int {
	counts := make(map[ChangeKind]int)
	for _, rec := range l.Records() {
		counts[rec.Kind]++
	}
	return counts
}

// MarshalJSON serializes the record list as the dry-run report document.
func (l *Ledger) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.Records())
}

// Report renders the ledger as the JSON document returned in the final
// job status message of a dry-run.
func (l *Ledger) Report() (string, error) {
	data, err := json.Marshal(l.Records())
	if err != nil {
		return "", fmt.Errorf("encoding change report: %w", err)
	}
	return string(data), nil
}
