package reconcile

import (
	"context"
	"errors"
	"fmt"

	"dirsync/internal/api"
	"dirsync/internal/ledger"
)

// applier is the single mutation seam of a run. Phase code computes the
// desired change once and hands it to the applier; whether the change
// hits the local store or only the change ledger is decided here, not
// by mode branches scattered through the phases.
type applier interface {
	DryRun() bool

	CreateUser(ctx context.Context, u api.LocalUser) (api.LocalUser, error)
	UpdateUser(ctx context.Context, before, after api.LocalUser) (api.LocalUser, error)

	// DemoteUser unlinks a local user from its vanished directory
	// identity. The caller decides the resulting status; protected
	// users keep theirs.
	DemoteUser(ctx context.Context, before, after api.LocalUser) error

	CreateGroup(ctx context.Context, g api.LocalGroup, members []api.LocalUser) (api.LocalGroup, error)
	UpdateGroup(ctx context.Context, before, after api.LocalGroup) error
	DeleteGroup(ctx context.Context, g api.LocalGroup) error

	AddMember(ctx context.Context, g api.LocalGroup, u api.LocalUser) error
	RemoveMember(ctx context.Context, g api.LocalGroup, u api.LocalUser) error

	// SkipEmptyGroup notes that a directory group with no resolvable
	// members was not created.
	SkipEmptyGroup(g api.DirectoryGroup)
}

// mutator applies changes to the local store.
type mutator struct {
	store    api.LocalStore
	tenantID string
}

func (m *mutator) DryRun() bool { return false }

func (m *mutator) CreateUser(ctx context.Context, u api.LocalUser) (api.LocalUser, error) {
	saved, err := m.store.SaveUser(ctx, m.tenantID, u)
	if errors.Is(err, api.ErrQuotaExceeded) {
		return saved, api.WrapReconcileError(api.CodeQuotaExceeded, err, "creating user %q", u.Login)
	}
	return saved, err
}

func (m *mutator) UpdateUser(ctx context.Context, _, after api.LocalUser) (api.LocalUser, error) {
	return m.store.SaveUser(ctx, m.tenantID, after)
}

func (m *mutator) DemoteUser(ctx context.Context, _, after api.LocalUser) error {
	_, err := m.store.SaveUser(ctx, m.tenantID, after)
	return err
}

func (m *mutator) CreateGroup(ctx context.Context, g api.LocalGroup, members []api.LocalUser) (api.LocalGroup, error) {
	saved, err := m.store.SaveGroup(ctx, m.tenantID, g)
	if err != nil {
		return saved, err
	}
	for _, u := range members {
		if err := m.store.AddGroupMember(ctx, m.tenantID, saved.ID, u.ID); err != nil {
			return saved, fmt.Errorf("adding %q to new group %q: %w", u.Login, g.Name, err)
		}
	}
	return saved, nil
}

func (m *mutator) UpdateGroup(ctx context.Context, _, after api.LocalGroup) error {
	_, err := m.store.SaveGroup(ctx, m.tenantID, after)
	return err
}

func (m *mutator) DeleteGroup(ctx context.Context, g api.LocalGroup) error {
	return m.store.DeleteGroup(ctx, m.tenantID, g.ID)
}

func (m *mutator) AddMember(ctx context.Context, g api.LocalGroup, u api.LocalUser) error {
	return m.store.AddGroupMember(ctx, m.tenantID, g.ID, u.ID)
}

func (m *mutator) RemoveMember(ctx context.Context, g api.LocalGroup, u api.LocalUser) error {
	return m.store.RemoveGroupMember(ctx, m.tenantID, g.ID, u.ID)
}

func (m *mutator) SkipEmptyGroup(api.DirectoryGroup) {}

// recorder appends every proposed change to the ledger and mutates
// nothing. Entities that would be created get synthetic pending ids so
// later membership records can still reference them.
type recorder struct {
	led *ledger.Ledger
}

func (r *recorder) DryRun() bool { return true }

func (r *recorder) CreateUser(_ context.Context, u api.LocalUser) (api.LocalUser, error) {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeAddUser,
		Entity:  ledger.EntityUser,
		Subject: u.Login,
		After:   userSummary(u),
	})
	u.ID = "pending-" + u.Sid
	return u, nil
}

func (r *recorder) UpdateUser(_ context.Context, before, after api.LocalUser) (api.LocalUser, error) {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeUpdateUser,
		Entity:  ledger.EntityUser,
		Subject: before.Login,
		Before:  userSummary(before),
		After:   userSummary(after),
	})
	return after, nil
}

func (r *recorder) DemoteUser(_ context.Context, before, after api.LocalUser) error {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeRemoveUser,
		Entity:  ledger.EntityUser,
		Subject: before.Login,
		Before:  userSummary(before),
		After:   userSummary(after),
	})
	return nil
}

func (r *recorder) CreateGroup(_ context.Context, g api.LocalGroup, members []api.LocalUser) (api.LocalGroup, error) {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeAddGroup,
		Entity:  ledger.EntityGroup,
		Subject: g.Name,
		After:   fmt.Sprintf("%d members", len(members)),
	})
	g.ID = "pending-" + g.Sid
	for _, u := range members {
		r.led.Append(memberRecord(ledger.ChangeAddMember, g, u))
	}
	return g, nil
}

func (r *recorder) UpdateGroup(_ context.Context, before, after api.LocalGroup) error {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeUpdateGroup,
		Entity:  ledger.EntityGroup,
		Subject: before.Name,
		Before:  before.Name,
		After:   after.Name,
	})
	return nil
}

func (r *recorder) DeleteGroup(_ context.Context, g api.LocalGroup) error {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeRemoveGroup,
		Entity:  ledger.EntityGroup,
		Subject: g.Name,
		Before:  g.Name,
	})
	return nil
}

func (r *recorder) AddMember(_ context.Context, g api.LocalGroup, u api.LocalUser) error {
	r.led.Append(memberRecord(ledger.ChangeAddMember, g, u))
	return nil
}

func (r *recorder) RemoveMember(_ context.Context, g api.LocalGroup, u api.LocalUser) error {
	r.led.Append(memberRecord(ledger.ChangeRemoveMember, g, u))
	return nil
}

func (r *recorder) SkipEmptyGroup(g api.DirectoryGroup) {
	r.led.Append(ledger.Record{
		Kind:    ledger.ChangeSkipGroup,
		Entity:  ledger.EntityGroup,
		Subject: g.Name,
	})
}

func memberRecord(kind ledger.ChangeKind, g api.LocalGroup, u api.LocalUser) ledger.Record {
	subject := u.Login
	if subject == "" {
		subject = u.ID
	}
	return ledger.Record{
		Kind:    kind,
		Entity:  ledger.EntityMembership,
		Subject: subject + " -> " + g.Name,
	}
}

func userSummary(u api.LocalUser) string {
	return fmt.Sprintf("%s %s <%s> %s", u.FirstName, u.LastName, u.Email, u.Status)
}
