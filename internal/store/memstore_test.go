package store

import (
	"context"
	"testing"

	"dirsync/internal/api"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveUser_AssignsIDAndTenant(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	u, err := m.SaveUser(ctx, "t1", api.LocalUser{Login: "alice", Sid: "s-1"})
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, "t1", u.TenantID)

	got, ok, err := m.FindUserBySid(ctx, "t1", "s-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "alice", got.Login)
}

func TestSaveUser_SidUniquePerTenant(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_, err := m.SaveUser(ctx, "t1", api.LocalUser{Login: "alice", Sid: "s-1"})
	require.NoError(t, err)

	_, err = m.SaveUser(ctx, "t1", api.LocalUser{Login: "bob", Sid: "s-1"})
	assert.Error(t, err)

	// Same Sid in another tenant is fine.
	_, err = m.SaveUser(ctx, "t2", api.LocalUser{Login: "bob", Sid: "s-1"})
	assert.NoError(t, err)
}

func TestSaveUser_QuotaExceeded(t *testing.T) {
	m := NewMemStore()
	m.MaxUsersPerTenant = 1
	ctx := context.Background()

	_, err := m.SaveUser(ctx, "t1", api.LocalUser{Login: "alice"})
	require.NoError(t, err)

	_, err = m.SaveUser(ctx, "t1", api.LocalUser{Login: "bob"})
	assert.ErrorIs(t, err, api.ErrQuotaExceeded)
}

func TestGroupMembership(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	g, err := m.SaveGroup(ctx, "t1", api.LocalGroup{Name: "devs", Sid: "g-1"})
	require.NoError(t, err)

	require.NoError(t, m.AddGroupMember(ctx, "t1", g.ID, "u1"))
	require.NoError(t, m.AddGroupMember(ctx, "t1", g.ID, "u2"))
	require.NoError(t, m.AddGroupMember(ctx, "t1", g.ID, "u1")) // no-op

	members, err := m.GroupMembers(ctx, "t1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, members)

	require.NoError(t, m.RemoveGroupMember(ctx, "t1", g.ID, "u1"))
	members, err = m.GroupMembers(ctx, "t1", g.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, members)

	require.NoError(t, m.DeleteGroup(ctx, "t1", g.ID))
	members, err = m.GroupMembers(ctx, "t1", g.ID)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestAddGroupMember_UnknownGroup(t *testing.T) {
	m := NewMemStore()
	err := m.AddGroupMember(context.Background(), "t1", "missing", "u1")
	assert.Error(t, err)
}

func TestAccessRights(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	require.NoError(t, m.GrantAccessRight(ctx, "t1", api.RightAdmin, "u1"))
	require.NoError(t, m.GrantAccessRight(ctx, "t1", api.RightAdmin, "u2"))
	require.NoError(t, m.GrantAccessRight(ctx, "t1", api.RightDocuments, "u1"))

	holders, err := m.AccessRightHolders(ctx, "t1", api.RightAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1", "u2"}, holders)

	require.NoError(t, m.RevokeAllAccessRights(ctx, "t1", "u1"))

	holders, err = m.AccessRightHolders(ctx, "t1", api.RightAdmin)
	require.NoError(t, err)
	assert.Equal(t, []string{"u2"}, holders)

	holders, err = m.AccessRightHolders(ctx, "t1", api.RightDocuments)
	require.NoError(t, err)
	assert.Empty(t, holders)
}

func TestAvatars(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	require.NoError(t, m.SaveAvatar(ctx, "t1", "u1", []byte{1, 2, 3}))

	ids, err := m.ListAvatarUserIDs(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, ids)

	data, ok := m.Avatar("t1", "u1")
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, data)

	require.NoError(t, m.DeleteAvatar(ctx, "t1", "u1"))
	_, ok = m.Avatar("t1", "u1")
	assert.False(t, ok)
}

func TestReadsDoNotCreateTenants(t *testing.T) {
	m := NewMemStore()
	ctx := context.Background()

	_, _, err := m.GetUser(ctx, "ghost", "u1")
	require.NoError(t, err)
	users, err := m.ListUsers(ctx, "ghost")
	require.NoError(t, err)
	assert.Empty(t, users)

	assert.Empty(t, m.tenants)
}
