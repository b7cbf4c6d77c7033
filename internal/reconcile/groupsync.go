package reconcile

import (
	"context"

	"dirsync/internal/api"
	"dirsync/pkg/logging"
)

// syncGroupScoped reconciles only the users reachable through the
// configured group population: the member union becomes the user
// population, then each group is diffed against its local counterpart,
// then stale groups are dropped.
func (j *Job) syncGroupScoped(ctx context.Context, src api.DirectorySource) error {
	j.setProgress(pctSyncStart, j.msgs.SyncingGroups)

	dirGroups, err := src.ListGroups(ctx)
	if err != nil {
		return j.mapDirectoryError(err)
	}
	if len(dirGroups) == 0 {
		return api.NewReconcileError(api.CodeGroupsNotFound, "no groups matched filter %q under %s", j.cfg.GroupFilter, j.cfg.GroupDN)
	}

	// resolve every group's members once, building the union population
	members := make(map[string][]api.DirectoryUser, len(dirGroups))
	unionSids := make(map[string]bool)
	var union []api.DirectoryUser
	for i, g := range dirGroups {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.setSource(g.Name)
		resolved, err := src.ResolveGroupMembers(ctx, g)
		if err != nil {
			if abortsRun(err) {
				return j.mapDirectoryError(err)
			}
			logging.Warn("Reconcile", "Could not resolve members of group %q: %v", g.Name, err)
			continue
		}
		members[g.Sid] = resolved
		for _, du := range resolved {
			if du.Sid != "" && !unionSids[du.Sid] {
				unionSids[du.Sid] = true
				union = append(union, du)
			}
		}
		j.setProgress(pctSyncStart+(i+1)*(pctMembersDone-pctSyncStart)/len(dirGroups), "")
	}
	j.setSource("")

	if len(union) == 0 {
		return api.NewReconcileError(api.CodeUsersNotFound, "no users resolved from %d directory groups", len(dirGroups))
	}

	remaining, err := j.removeStaleUsers(ctx, union)
	if err != nil {
		return err
	}

	j.setProgress(pctMembersDone, j.msgs.SyncingUsers)
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
		j.setProgress(pctMembersDone+(i+1)*(pctUsersDone-pctMembersDone)/len(remaining), "")
	}
	j.setSource("")

	j.setProgress(pctUsersDone, j.msgs.SyncingGroups)
	keep := make(map[string]bool, len(dirGroups))
	for i, g := range dirGroups {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		j.setSource(g.Name)
		if err := j.syncGroup(ctx, g, members[g.Sid]); err != nil {
			if abortsRun(err) {
				return err
			}
			logging.Warn("Reconcile", "Skipping group %q: %v", g.Name, err)
			continue
		}
		keep[g.Sid] = true
		j.setProgress(pctUsersDone+(i+1)*(pctGroupsDone-pctUsersDone)/len(dirGroups), "")
	}
	j.setSource("")

	if err := j.removeStaleGroups(ctx, keep); err != nil {
		return err
	}

	j.seen = remaining
	return nil
}

// syncGroup converges one directory group onto its local counterpart:
// create it with its resolvable members, or diff name and membership
// against the existing group. A managed group left without a single
// member is deleted rather than kept empty.
func (j *Job) syncGroup(ctx context.Context, dg api.DirectoryGroup, dirMembers []api.DirectoryUser) error {
	if dg.Sid == "" {
		logging.Debug("Reconcile", "Directory group %q carries no identity, skipping", dg.Name)
		return nil
	}

	var want []api.LocalUser
	wantIDs := make(map[string]bool, len(dirMembers))
	for _, du := range dirMembers {
		lu, err := j.syncUser(ctx, du)
		if err != nil {
			if abortsRun(err) {
				return err
			}
			logging.Warn("Reconcile", "Skipping member %q of group %q: %v", du.Login, dg.Name, err)
			continue
		}
		if api.IsLostUser(lu) {
			continue
		}
		if !wantIDs[lu.ID] {
			wantIDs[lu.ID] = true
			want = append(want, lu)
		}
	}

	local, found, err := j.store.FindGroupBySid(ctx, j.tenant.ID, dg.Sid)
	if err != nil {
		return err
	}

	if !found {
		if len(want) == 0 {
			j.app.SkipEmptyGroup(dg)
			return nil
		}
		_, err := j.app.CreateGroup(ctx, api.LocalGroup{TenantID: j.tenant.ID, Sid: dg.Sid, Name: dg.Name}, want)
		return err
	}

	if local.Name != dg.Name {
		after := local
		after.Name = dg.Name
		if err := j.app.UpdateGroup(ctx, local, after); err != nil {
			return err
		}
		local = after
	}

	current, err := j.store.GroupMembers(ctx, j.tenant.ID, local.ID)
	if err != nil {
		return err
	}
	currentSet := make(map[string]bool, len(current))
	for _, id := range current {
		currentSet[id] = true
	}

	removed := 0
	for _, id := range current {
		if wantIDs[id] {
			continue
		}
		if err := j.app.RemoveMember(ctx, local, j.memberForSubject(ctx, id)); err != nil {
			logging.Warn("Reconcile", "Could not remove member %s from group %q: %v", id, local.Name, err)
			continue
		}
		removed++
	}

	added := 0
	for _, lu := range want {
		if currentSet[lu.ID] {
			continue
		}
		if err := j.app.AddMember(ctx, local, lu); err != nil {
			logging.Warn("Reconcile", "Could not add member %q to group %q: %v", lu.Login, local.Name, err)
			continue
		}
		added++
	}

	if len(current)-removed+added == 0 {
		return j.app.DeleteGroup(ctx, local)
	}
	return nil
}

// removeStaleGroups deletes every directory-managed local group whose
// identity is not in keep. Flat mode passes nil: it owns no groups at
// all.
func (j *Job) removeStaleGroups(ctx context.Context, keep map[string]bool) error {
	groups, err := j.store.ListGroups(ctx, j.tenant.ID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		if g.Sid == "" || keep[g.Sid] {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := j.app.DeleteGroup(ctx, g); err != nil {
			logging.Warn("Reconcile", "Could not delete group %q: %v", g.Name, err)
		}
	}
	return nil
}

// memberForSubject resolves a member id to its user for change
// reporting, falling back to the bare id.
func (j *Job) memberForSubject(ctx context.Context, userID string) api.LocalUser {
	if u, ok, err := j.store.GetUser(ctx, j.tenant.ID, userID); err == nil && ok {
		return u
	}
	return api.LocalUser{ID: userID}
}
