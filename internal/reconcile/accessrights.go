package reconcile

import (
	"context"
	"fmt"

	"dirsync/internal/api"
	"dirsync/pkg/logging"
)

// syncAccessRights re-derives administrative rights from directory
// group membership. Rights granted by the previous run (recorded in
// the snapshot) are revoked first, then the configured group patterns
// grant the current set. Manually granted rights are never in the
// snapshot and therefore survive untouched.
//
// The triggering user is never revoked. A right they held that is not
// re-granted stays in place and produces a warning instead.
func (j *Job) syncAccessRights(ctx context.Context, src api.DirectorySource) error {
	j.setProgress(pctRights, j.msgs.SyncingRights)
	if j.app.DryRun() {
		return nil
	}

	snap, err := j.persist.LoadAccessRights(j.tenant.ID)
	if err != nil {
		return err
	}

	pendingLoss := make(map[api.AccessRight]bool)
	for right, ids := range snap.Granted {
		for _, id := range ids {
			if id != "" && id == j.actorID {
				pendingLoss[right] = true
				continue
			}
			if err := j.store.RevokeAccessRight(ctx, j.tenant.ID, right, id); err != nil {
				logging.Warn("Reconcile", "Could not revoke %s from user %s: %v", right, id, err)
			}
		}
	}

	next := api.NewAccessRightsSnapshot()
	if j.cfg.GroupMembership && len(j.cfg.AccessRights) > 0 {
		strippedOnce := make(map[string]bool)
		for _, right := range api.KnownAccessRights() {
			patterns := j.cfg.AccessRights[right]
			if patterns == "" {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}

			groups, err := src.FindGroupsByNamePattern(ctx, patterns)
			if err != nil {
				logging.Warn("Reconcile", "Could not look up groups for right %s: %v", right, err)
				continue
			}
			for _, dg := range groups {
				local, found, err := j.store.FindGroupBySid(ctx, j.tenant.ID, dg.Sid)
				if err != nil || !found {
					continue
				}
				memberIDs, err := j.store.GroupMembers(ctx, j.tenant.ID, local.ID)
				if err != nil {
					logging.Warn("Reconcile", "Could not read members of group %q: %v", local.Name, err)
					continue
				}
				for _, id := range memberIDs {
					user, found, err := j.store.GetUser(ctx, j.tenant.ID, id)
					if err != nil || !found || user.Service || user.Status != api.UserActive {
						continue
					}

					// the first grant of a run replaces whatever the
					// user held before, except for the triggering user
					if !strippedOnce[id] && id != j.actorID {
						if err := j.store.RevokeAllAccessRights(ctx, j.tenant.ID, id); err != nil {
							logging.Warn("Reconcile", "Could not reset rights of user %q: %v", user.Login, err)
						}
					}
					strippedOnce[id] = true

					if err := j.store.GrantAccessRight(ctx, j.tenant.ID, right, id); err != nil {
						logging.Warn("Reconcile", "Could not grant %s to user %q: %v", right, user.Login, err)
						continue
					}
					next.Granted[right] = appendUnique(next.Granted[right], id)
					if id == j.actorID {
						delete(pendingLoss, right)
					}
				}
			}
		}
	}

	for _, right := range api.KnownAccessRights() {
		if pendingLoss[right] {
			j.warn(fmt.Sprintf(j.msgs.RightLostNotice, right))
		}
	}

	if err := j.persist.SaveAccessRights(j.tenant.ID, next); err != nil {
		return err
	}
	return j.persist.SaveSettings(j.tenant.ID, j.cfg)
}

func appendUnique(ids []string, id string) []string {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}
