package reconcile

import (
	"context"
	"crypto/md5"
	"encoding/hex"

	"dirsync/internal/api"
	"dirsync/pkg/logging"
)

// syncAvatars mirrors directory photos into the local avatar cache.
// The content hash of the last synced photo is kept per user so an
// unchanged photo costs one hash comparison instead of a write. A
// dry-run advances through the same checkpoints without touching
// anything; an unconfigured photo attribute wipes the cache.
func (j *Job) syncAvatars(ctx context.Context) error {
	j.setProgress(pctAvatarsStart, j.msgs.SyncingAvatars)
	if j.app.DryRun() {
		j.setProgress(pctAvatarsEnd, "")
		return nil
	}

	if j.cfg.Mapping.Avatar == "" {
		ids, err := j.store.ListAvatarUserIDs(ctx, j.tenant.ID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			if err := j.store.DeleteAvatar(ctx, j.tenant.ID, id); err != nil {
				logging.Warn("Reconcile", "Could not delete cached photo of user %s: %v", id, err)
			}
		}
		j.setProgress(pctAvatarsEnd, "")
		return j.persist.SaveAvatarHashes(j.tenant.ID, api.NewAvatarHashMap())
	}

	hashes, err := j.persist.LoadAvatarHashes(j.tenant.ID)
	if err != nil {
		return err
	}

	var candidates []api.DirectoryUser
	for _, du := range j.seen {
		if du.Sid != "" && !du.Disabled && len(du.Avatar) > 0 {
			candidates = append(candidates, du)
		}
	}

	for i, du := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		lu, ok := j.synced[du.Sid]
		if !ok || api.IsLostUser(lu) {
			continue
		}

		sum := avatarHash(du.Avatar)
		if hashes.Hashes[lu.ID] == sum {
			j.setProgress(pctAvatarsStart+(i+1)*(pctAvatarsEnd-pctAvatarsStart)/len(candidates), "")
			continue
		}

		j.setSource(lu.Login)
		if err := j.store.SaveAvatar(ctx, j.tenant.ID, lu.ID, du.Avatar); err != nil {
			// drop the stale hash so the next run retries the photo
			logging.Warn("Reconcile", "Could not save photo of user %q: %v", lu.Login, err)
			delete(hashes.Hashes, lu.ID)
		} else {
			hashes.Hashes[lu.ID] = sum
		}
		j.setProgress(pctAvatarsStart+(i+1)*(pctAvatarsEnd-pctAvatarsStart)/len(candidates), "")
	}
	j.setSource("")

	j.setProgress(pctAvatarsEnd, "")
	return j.persist.SaveAvatarHashes(j.tenant.ID, hashes)
}

func avatarHash(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
