package reconcile

import (
	"context"
	"strings"
	"testing"

	"dirsync/internal/api"
	"dirsync/internal/settings"
	"dirsync/internal/store"

	"github.com/stretchr/testify/require"
)

// fakeSource is an in-memory api.DirectorySource for engine tests.
type fakeSource struct {
	bindResult api.ConnectResult
	users      []api.DirectoryUser
	usersErr   error
	groups     []api.DirectoryGroup
	groupsErr  error
	// members maps group sid -> resolved members
	members map[string][]api.DirectoryUser
	closed  bool
}

func (f *fakeSource) Bind(context.Context, string, string) api.ConnectResult {
	return f.bindResult
}

func (f *fakeSource) ListUsers(context.Context) ([]api.DirectoryUser, error) {
	return f.users, f.usersErr
}

func (f *fakeSource) ListGroups(context.Context) ([]api.DirectoryGroup, error) {
	return f.groups, f.groupsErr
}

func (f *fakeSource) ResolveGroupMembers(_ context.Context, g api.DirectoryGroup) ([]api.DirectoryUser, error) {
	return f.members[g.Sid], nil
}

func (f *fakeSource) FindGroupsByNamePattern(_ context.Context, patterns string) ([]api.DirectoryGroup, error) {
	var out []api.DirectoryGroup
	for _, p := range strings.Split(patterns, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		for _, g := range f.groups {
			if strings.EqualFold(g.Name, p) {
				out = append(out, g)
			}
		}
	}
	return out, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

const testTenant = "t1"

// fixture wires a job against the in-memory store, a temp-dir settings
// store and a fake directory. The tenant owner exists from the start.
type fixture struct {
	store   *store.MemStore
	persist *settings.Store
	src     *fakeSource
	tenant  api.Tenant
	ownerID string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemStore()
	owner, err := st.SaveUser(context.Background(), testTenant, api.LocalUser{
		Login:       "owner",
		Status:      api.UserActive,
		ContactKind: api.ContactOrdinary,
	})
	require.NoError(t, err)
	st.SetTenantOwner(testTenant, owner.ID)

	return &fixture{
		store:   st,
		persist: settings.NewStore(t.TempDir()),
		src:     &fakeSource{members: make(map[string][]api.DirectoryUser)},
		tenant:  api.Tenant{ID: testTenant, OwnerID: owner.ID},
		ownerID: owner.ID,
	}
}

func (f *fixture) newJob(kind api.OperationKind, cfg *settings.Settings, actorID string) *Job {
	return NewJob(Params{
		ID:       "job-1",
		Tenant:   f.tenant,
		Kind:     kind,
		Settings: cfg,
		ActorID:  actorID,
		Messages: DefaultMessages(),
		Store:    f.store,
		Persist:  f.persist,
		Connect: func(context.Context, *settings.Settings, string) (api.DirectorySource, api.ConnectResult) {
			return f.src, api.ConnectResult{Status: api.ConnectOK}
		},
	})
}

func (f *fixture) run(t *testing.T, kind api.OperationKind, cfg *settings.Settings, actorID string) (*Job, api.JobStatus) {
	t.Helper()
	j := f.newJob(kind, cfg, actorID)
	j.Run(context.Background())
	return j, j.Snapshot()
}

func (f *fixture) userBySid(t *testing.T, sid string) api.LocalUser {
	t.Helper()
	u, ok, err := f.store.FindUserBySid(context.Background(), testTenant, sid)
	require.NoError(t, err)
	require.True(t, ok, "no user with sid %s", sid)
	return u
}

func (f *fixture) userByLogin(t *testing.T, login string) api.LocalUser {
	t.Helper()
	users, err := f.store.ListUsers(context.Background(), testTenant)
	require.NoError(t, err)
	for _, u := range users {
		if u.Login == login {
			return u
		}
	}
	t.Fatalf("no user with login %s", login)
	return api.LocalUser{}
}

func enabledSettings() *settings.Settings {
	cfg := settings.Default()
	cfg.Enabled = true
	cfg.Server = "ldap://directory.example.com"
	cfg.UserDN = "ou=people,dc=example,dc=com"
	return &cfg
}

func groupSettings() *settings.Settings {
	cfg := enabledSettings()
	cfg.GroupMembership = true
	cfg.GroupDN = "ou=groups,dc=example,dc=com"
	return cfg
}

func dirUser(sid, login string) api.DirectoryUser {
	return api.DirectoryUser{
		Sid:       sid,
		Login:     login,
		FirstName: strings.ToUpper(login[:1]) + login[1:],
		LastName:  "Example",
		Email:     login + "@example.com",
	}
}
