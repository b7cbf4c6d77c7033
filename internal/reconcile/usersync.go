package reconcile

import (
	"context"
	"fmt"

	"dirsync/internal/api"
	"dirsync/pkg/logging"
)

// syncFlat reconciles the whole user population selected by the user
// filter. Flat mode never owns groups: any group still linked to a
// directory identity is removed.
func (j *Job) syncFlat(ctx context.Context, src api.DirectorySource) error {
	j.setProgress(pctSyncStart, j.msgs.SyncingUsers)

	users, err := src.ListUsers(ctx)
	if err != nil {
		return j.mapDirectoryError(err)
	}
	if len(users) == 0 {
		return api.NewReconcileError(api.CodeUsersNotFound, "no users matched filter %q under %s", j.cfg.UserFilter, j.cfg.UserDN)
	}

	remaining, err := j.removeStaleUsers(ctx, users)
	if err != nil {
		return err
	}
	j.setProgress(pctMembersDone, "")

	for i, du := range remaining {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.setSource(du.Login)
		if _, err := j.syncUser(ctx, du); err != nil {
			if abortsRun(err) {
				return err
			}
			logging.Warn("Reconcile", "Skipping user %q: %v", du.Login, err)
		}
		j.setProgress(pctMembersDone+(i+1)*(pctGroupsDone-pctMembersDone)/len(remaining), "")
	}
	j.setSource("")

	if err := j.removeStaleGroups(ctx, nil); err != nil {
		return err
	}

	j.seen = remaining
	return nil
}

// removeStaleUsers demotes every directory-managed local user whose
// identity is absent from the current directory population. The tenant
// owner and the triggering user (when privileged) keep their status;
// everyone else is terminated. External contacts become ordinary users
// in the process. Returns the input minus any identity that was
// removed.
func (j *Job) removeStaleUsers(ctx context.Context, present []api.DirectoryUser) ([]api.DirectoryUser, error) {
	locals, err := j.store.ListUsers(ctx, j.tenant.ID)
	if err != nil {
		return nil, err
	}

	presentSids := make(map[string]bool, len(present))
	for _, du := range present {
		if du.Sid != "" {
			presentSids[du.Sid] = true
		}
	}

	removedSids := make(map[string]bool)
	for _, lu := range locals {
		if lu.Sid == "" || presentSids[lu.Sid] {
			continue
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		before := lu
		after := lu
		after.Sid = ""
		if after.ContactKind == api.ContactExternal {
			after.ContactKind = api.ContactOrdinary
		}

		protected := false
		switch {
		case lu.ID == j.ownerID:
			protected = true
			if !j.app.DryRun() {
				j.warn(fmt.Sprintf(j.msgs.OwnerKeptNotice, lu.Login))
			}
		case lu.ID == j.actorID && j.actorID != "" && j.actorElevated(ctx):
			protected = true
			if !j.app.DryRun() {
				j.warn(j.msgs.SelfRemoveNotice)
			}
		}
		if !protected {
			after.Status = api.UserTerminated
		}

		j.setSource(lu.Login)
		if err := j.app.DemoteUser(ctx, before, after); err != nil {
			if abortsRun(err) {
				return nil, err
			}
			logging.Warn("Reconcile", "Could not demote user %q: %v", lu.Login, err)
			continue
		}
		removedSids[before.Sid] = true
	}
	j.setSource("")

	if len(removedSids) == 0 {
		return present, nil
	}
	remaining := make([]api.DirectoryUser, 0, len(present))
	for _, du := range present {
		if !removedSids[du.Sid] {
			remaining = append(remaining, du)
		}
	}
	return remaining, nil
}

// syncUser upserts one directory user and returns its local
// counterpart. A user without a resolvable identity yields the lost
// sentinel. Results are cached per run so the membership phase reuses
// the user phase's work.
func (j *Job) syncUser(ctx context.Context, du api.DirectoryUser) (api.LocalUser, error) {
	if du.Sid == "" {
		logging.Debug("Reconcile", "Directory user %q carries no identity, treating as lost", du.Login)
		return api.LostUser(), nil
	}
	if cached, ok := j.synced[du.Sid]; ok {
		return cached, nil
	}

	existing, found, err := j.store.FindUserBySid(ctx, j.tenant.ID, du.Sid)
	if err != nil {
		return api.LostUser(), err
	}

	var result api.LocalUser
	if found {
		after, changed := mergeUser(existing, du)
		if changed {
			result, err = j.app.UpdateUser(ctx, existing, after)
		} else {
			result = existing
		}
	} else {
		if du.Login == "" {
			return api.LostUser(), api.NewReconcileError(api.CodeFormat, "directory user %s has no value for the login attribute", du.Sid)
		}
		result, err = j.app.CreateUser(ctx, newLocalUser(j.tenant.ID, du))
	}
	if err != nil {
		return api.LostUser(), err
	}

	j.synced[du.Sid] = result
	return result, nil
}

// actorElevated reports whether the triggering user currently holds any
// administrative right.
func (j *Job) actorElevated(ctx context.Context) bool {
	for _, right := range api.KnownAccessRights() {
		holders, err := j.store.AccessRightHolders(ctx, j.tenant.ID, right)
		if err != nil {
			continue
		}
		for _, id := range holders {
			if id == j.actorID {
				return true
			}
		}
	}
	return false
}

// mergeUser projects the directory snapshot onto an existing local
// user and reports whether anything changed.
func mergeUser(existing api.LocalUser, du api.DirectoryUser) (api.LocalUser, bool) {
	after := existing
	if du.Login != "" {
		after.Login = du.Login
	}
	after.FirstName = du.FirstName
	after.LastName = du.LastName
	if du.Email != "" {
		after.Email = du.Email
	}
	if du.Disabled {
		after.Status = api.UserTerminated
	} else {
		after.Status = api.UserActive
	}
	if after.ContactKind == api.ContactExternal {
		after.ContactKind = api.ContactOrdinary
	}
	return after, after != existing
}

func newLocalUser(tenantID string, du api.DirectoryUser) api.LocalUser {
	status := api.UserActive
	if du.Disabled {
		status = api.UserTerminated
	}
	return api.LocalUser{
		TenantID:    tenantID,
		Sid:         du.Sid,
		Login:       du.Login,
		FirstName:   du.FirstName,
		LastName:    du.LastName,
		Email:       du.Email,
		Status:      status,
		ContactKind: api.ContactOrdinary,
	}
}
