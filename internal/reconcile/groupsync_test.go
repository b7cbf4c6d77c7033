package reconcile

import (
	"context"
	"testing"

	"dirsync/internal/api"
	"dirsync/internal/ledger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGroupSync_CreatesGroupsWithMembers(t *testing.T) {
	f := newFixture(t)
	f.src.groups = []api.DirectoryGroup{{Sid: "g-1", Name: "devs"}}
	f.src.members["g-1"] = []api.DirectoryUser{dirUser("s-1", "alice"), dirUser("s-2", "bob")}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)

	ctx := context.Background()
	group, ok, err := f.store.FindGroupBySid(ctx, testTenant, "g-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "devs", group.Name)

	members, err := f.store.GroupMembers(ctx, testTenant, group.ID)
	require.NoError(t, err)
	assert.Len(t, members, 2)
}

func TestGroupSync_OnlyMembersAreSynced(t *testing.T) {
	f := newFixture(t)
	f.src.groups = []api.DirectoryGroup{{Sid: "g-1", Name: "devs"}}
	f.src.members["g-1"] = []api.DirectoryUser{dirUser("s-1", "alice")}
	// bob exists in the directory but belongs to no group
	f.src.users = []api.DirectoryUser{dirUser("s-1", "alice"), dirUser("s-2", "bob")}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)

	_, ok, err := f.store.FindUserBySid(context.Background(), testTenant, "s-2")
	require.NoError(t, err)
	assert.False(t, ok, "users outside the group population must not be created")
}

func TestGroupSync_EmptyGroupIsSkippedNotCreated(t *testing.T) {
	f := newFixture(t)
	f.src.groups = []api.DirectoryGroup{
		{Sid: "g-1", Name: "devs"},
		{Sid: "g-2", Name: "empty"},
	}
	f.src.members["g-1"] = []api.DirectoryUser{dirUser("s-1", "alice")}

	j, status := f.run(t, api.OpSyncDryRun, groupSettings(), "")
	require.Empty(t, status.Error)

	counts := j.Ledger().CountByKind()
	assert.Equal(t, 1, counts[ledger.ChangeSkipGroup])
	assert.Equal(t, 1, counts[ledger.ChangeAddGroup])

	_, status = f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)
	_, ok, err := f.store.FindGroupBySid(context.Background(), testTenant, "g-2")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestGroupSync_RenamesDriftedGroup(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.SaveGroup(ctx, testTenant, api.LocalGroup{Sid: "g-1", Name: "old-name"})
	require.NoError(t, err)
	f.src.groups = []api.DirectoryGroup{{Sid: "g-1", Name: "new-name"}}
	f.src.members["g-1"] = []api.DirectoryUser{dirUser("s-1", "alice")}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)

	group, ok, err := f.store.FindGroupBySid(ctx, testTenant, "g-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "new-name", group.Name)
}

func TestGroupSync_ConvergesMembership(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	departed, err := f.store.SaveUser(ctx, testTenant, api.LocalUser{
		Login: "departed", Status: api.UserActive, ContactKind: api.ContactOrdinary,
	})
	require.NoError(t, err)
	group, err := f.store.SaveGroup(ctx, testTenant, api.LocalGroup{Sid: "g-1", Name: "devs"})
	require.NoError(t, err)
	require.NoError(t, f.store.AddGroupMember(ctx, testTenant, group.ID, departed.ID))

	f.src.groups = []api.DirectoryGroup{{Sid: "g-1", Name: "devs"}}
	f.src.members["g-1"] = []api.DirectoryUser{dirUser("s-1", "alice")}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)

	members, err := f.store.GroupMembers(ctx, testTenant, group.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, f.userBySid(t, "s-1").ID, members[0])
}

func TestGroupSync_DeletesGroupEmptiedByDiff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	departed, err := f.store.SaveUser(ctx, testTenant, api.LocalUser{
		Login: "departed", Status: api.UserActive, ContactKind: api.ContactOrdinary,
	})
	require.NoError(t, err)
	group, err := f.store.SaveGroup(ctx, testTenant, api.LocalGroup{Sid: "g-1", Name: "devs"})
	require.NoError(t, err)
	require.NoError(t, f.store.AddGroupMember(ctx, testTenant, group.ID, departed.ID))

	// the group still exists in the directory but all its members are
	// unresolvable now
	f.src.groups = []api.DirectoryGroup{
		{Sid: "g-1", Name: "devs"},
		{Sid: "g-2", Name: "ops"},
	}
	f.src.members["g-2"] = []api.DirectoryUser{dirUser("s-1", "alice")}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)

	_, ok, err := f.store.FindGroupBySid(ctx, testTenant, "g-1")
	require.NoError(t, err)
	assert.False(t, ok, "a managed group left without members is deleted")
}

func TestGroupSync_RemovesStaleGroups(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.store.SaveGroup(ctx, testTenant, api.LocalGroup{Sid: "g-stale", Name: "stale"})
	require.NoError(t, err)
	_, err = f.store.SaveGroup(ctx, testTenant, api.LocalGroup{Name: "local-only"})
	require.NoError(t, err)

	f.src.groups = []api.DirectoryGroup{{Sid: "g-1", Name: "devs"}}
	f.src.members["g-1"] = []api.DirectoryUser{dirUser("s-1", "alice")}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")
	require.Empty(t, status.Error)

	groups, err := f.store.ListGroups(ctx, testTenant)
	require.NoError(t, err)
	names := make([]string, 0, len(groups))
	for _, g := range groups {
		names = append(names, g.Name)
	}
	assert.ElementsMatch(t, []string{"local-only", "devs"}, names)
}

func TestGroupSync_NoGroupsAborts(t *testing.T) {
	f := newFixture(t)

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")

	assert.Equal(t, DefaultMessages().ErrorText(api.CodeGroupsNotFound), status.Error)
}

func TestGroupSync_NoResolvableMembersAborts(t *testing.T) {
	f := newFixture(t)
	f.src.groups = []api.DirectoryGroup{{Sid: "g-1", Name: "devs"}}

	_, status := f.run(t, api.OpSyncApply, groupSettings(), "")

	assert.Equal(t, DefaultMessages().ErrorText(api.CodeUsersNotFound), status.Error)
}

func TestGroupSync_SharedMemberSyncedOnce(t *testing.T) {
	f := newFixture(t)
	alice := dirUser("s-1", "alice")
	f.src.groups = []api.DirectoryGroup{
		{Sid: "g-1", Name: "devs"},
		{Sid: "g-2", Name: "ops"},
	}
	f.src.members["g-1"] = []api.DirectoryUser{alice}
	f.src.members["g-2"] = []api.DirectoryUser{alice}

	j, status := f.run(t, api.OpSyncDryRun, groupSettings(), "")
	require.Empty(t, status.Error)

	counts := j.Ledger().CountByKind()
	assert.Equal(t, 1, counts[ledger.ChangeAddUser], "a user in two groups is created once")
	assert.Equal(t, 2, counts[ledger.ChangeAddGroup])
}
