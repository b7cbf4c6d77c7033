package reconcile

import (
	"context"

	"dirsync/internal/api"
	"dirsync/pkg/logging"
)

// runTurnOff executes a run with the integration disabled: every local
// user and group is unlinked from its directory identity and the
// cached avatar hashes and rights snapshot are reset. Previously
// granted access rights are deliberately kept; revoking admin access
// as a side effect of switching the integration off could lock the
// portal.
func (j *Job) runTurnOff(ctx context.Context) {
	j.setProgress(pctSyncStart, j.msgs.TurningOff)

	if j.kind.Save() && j.kind.Apply() {
		j.cfg.ClearAccessRights()
		if err := j.persist.SaveSettings(j.tenant.ID, j.cfg); err != nil {
			j.failCode(api.CodeSaveSettings, err)
			return
		}
	}

	users, err := j.store.ListUsers(ctx, j.tenant.ID)
	if err != nil {
		j.failErr(err)
		return
	}
	for i, lu := range users {
		if lu.Sid == "" {
			continue
		}
		if j.canceled(ctx) {
			return
		}

		after := lu
		after.Sid = ""
		if after.ContactKind == api.ContactExternal {
			after.ContactKind = api.ContactOrdinary
		}

		j.setSource(lu.Login)
		if _, err := j.app.UpdateUser(ctx, lu, after); err != nil {
			if abortsRun(err) {
				j.failErr(err)
				return
			}
			logging.Warn("Reconcile", "Could not unlink user %q: %v", lu.Login, err)
		}
		j.setProgress(pctSyncStart+(i+1)*(pctUsersDone-pctSyncStart)/len(users), "")
	}
	j.setSource("")

	groups, err := j.store.ListGroups(ctx, j.tenant.ID)
	if err != nil {
		j.failErr(err)
		return
	}
	for i, g := range groups {
		if g.Sid == "" {
			continue
		}
		if j.canceled(ctx) {
			return
		}

		after := g
		after.Sid = ""
		if err := j.app.UpdateGroup(ctx, g, after); err != nil {
			logging.Warn("Reconcile", "Could not unlink group %q: %v", g.Name, err)
		}
		j.setProgress(pctUsersDone+(i+1)*(pctSyncEnd-pctUsersDone)/len(groups), "")
	}

	if !j.app.DryRun() {
		if err := j.persist.SaveAvatarHashes(j.tenant.ID, api.NewAvatarHashMap()); err != nil {
			j.failErr(err)
			return
		}
		if err := j.persist.SaveAccessRights(j.tenant.ID, api.NewAccessRightsSnapshot()); err != nil {
			j.failErr(err)
			return
		}
		logging.Warn("Reconcile", "Integration turned off for tenant %s; previously granted access rights were kept", j.tenant.ID)
	}

	j.setProgress(pctDisconnect, j.msgs.Disconnecting)
}
