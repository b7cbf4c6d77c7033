package coordinator

import (
	"context"
	"testing"
	"time"

	"dirsync/internal/api"
	"dirsync/internal/reconcile"
	"dirsync/internal/settings"
	"dirsync/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTenant = "t1"

// gateSource serves one directory user and optionally blocks ListUsers
// until released, so tests can observe a running job.
type gateSource struct {
	release chan struct{}
	users   []api.DirectoryUser
}

func (g *gateSource) Bind(context.Context, string, string) api.ConnectResult {
	return api.ConnectResult{Status: api.ConnectOK}
}

func (g *gateSource) ListUsers(ctx context.Context) ([]api.DirectoryUser, error) {
	if g.release != nil {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-g.release:
		}
	}
	return g.users, nil
}

func (g *gateSource) ListGroups(context.Context) ([]api.DirectoryGroup, error) { return nil, nil }

func (g *gateSource) ResolveGroupMembers(context.Context, api.DirectoryGroup) ([]api.DirectoryUser, error) {
	return nil, nil
}

func (g *gateSource) FindGroupsByNamePattern(context.Context, string) ([]api.DirectoryGroup, error) {
	return nil, nil
}

func (g *gateSource) Close() error { return nil }

type testEnv struct {
	coord   *Coordinator
	store   *store.MemStore
	src     *gateSource
	tenant  api.Tenant
	ownerID string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemStore()
	owner, err := st.SaveUser(context.Background(), testTenant, api.LocalUser{
		Login: "owner", Status: api.UserActive, ContactKind: api.ContactOrdinary,
	})
	require.NoError(t, err)
	st.SetTenantOwner(testTenant, owner.ID)

	src := &gateSource{users: []api.DirectoryUser{{
		Sid: "s-1", Login: "alice", Email: "alice@example.com",
	}}}

	coord := New(Config{
		Store:   st,
		Persist: settings.NewStore(t.TempDir()),
		Connect: func(context.Context, *settings.Settings, string) (api.DirectorySource, api.ConnectResult) {
			return src, api.ConnectResult{Status: api.ConnectOK}
		},
	})
	coord.Start(context.Background())
	t.Cleanup(coord.Stop)

	return &testEnv{
		coord:   coord,
		store:   st,
		src:     src,
		tenant:  api.Tenant{ID: testTenant, OwnerID: owner.ID},
		ownerID: owner.ID,
	}
}

func enabledSettings() *settings.Settings {
	cfg := settings.Default()
	cfg.Enabled = true
	cfg.Server = "ldap://directory.example.com"
	cfg.UserDN = "ou=people,dc=example,dc=com"
	return &cfg
}

func waitFinished(t *testing.T, env *testEnv) api.JobStatus {
	t.Helper()
	env.coord.Wait(testTenant)
	status := env.coord.Status(testTenant)
	require.NotNil(t, status)
	require.True(t, status.Finished)
	return *status
}

func TestSubmit_RunsJobToCompletion(t *testing.T) {
	env := newTestEnv(t)

	initial, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, initial.ID)

	status := waitFinished(t, env)
	assert.Empty(t, status.Error)
	assert.Equal(t, 100, status.Percentage)

	_, ok, err := env.store.FindUserBySid(context.Background(), testTenant, "s-1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSubmit_InvalidKindRejected(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.coord.Submit(SubmitRequest{Tenant: env.tenant, Kind: "bogus"})
	assert.Error(t, err)
}

func TestSubmit_SameKindJoinsRunningJob(t *testing.T) {
	env := newTestEnv(t)
	env.src.release = make(chan struct{})

	first, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)

	second, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "resubmitting the running kind joins the job")

	close(env.src.release)
	waitFinished(t, env)
}

func TestSubmit_ConflictingKindRejected(t *testing.T) {
	env := newTestEnv(t)
	env.src.release = make(chan struct{})

	_, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)

	_, err = env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSaveApply, Settings: enabledSettings(),
	})
	assert.ErrorIs(t, err, ErrTooManyOperations)

	close(env.src.release)
	waitFinished(t, env)
}

func TestSubmit_FinishedJobIsEvicted(t *testing.T) {
	env := newTestEnv(t)

	first, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)
	waitFinished(t, env)

	second, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	waitFinished(t, env)
}

func TestStatus_UnknownTenantIsNil(t *testing.T) {
	env := newTestEnv(t)
	assert.Nil(t, env.coord.Status("nobody"))
}

func TestStatus_WarningDeliveredOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	// link the owner to an identity the directory no longer reports
	owner, ok, err := env.store.GetUser(ctx, testTenant, env.ownerID)
	require.NoError(t, err)
	require.True(t, ok)
	owner.Sid = "s-owner"
	_, err = env.store.SaveUser(ctx, testTenant, owner)
	require.NoError(t, err)

	_, err = env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)
	env.coord.Wait(testTenant)

	first := env.coord.Status(testTenant)
	require.NotNil(t, first)
	assert.NotEmpty(t, first.Warning)

	second := env.coord.Status(testTenant)
	require.NotNil(t, second)
	assert.Empty(t, second.Warning)
}

func TestCancel_StopsRunningJob(t *testing.T) {
	env := newTestEnv(t)
	env.src.release = make(chan struct{})

	_, err := env.coord.Submit(SubmitRequest{
		Tenant: env.tenant, Kind: api.OpSyncApply, Settings: enabledSettings(),
	})
	require.NoError(t, err)

	// the worker needs a moment to pick the job up before we cancel
	require.Eventually(t, func() bool {
		s := env.coord.Status(testTenant)
		return s != nil && s.Percentage > 0
	}, 2*time.Second, 10*time.Millisecond)

	env.coord.Cancel(testTenant)
	status := waitFinished(t, env)

	assert.Empty(t, status.Error)
	assert.Equal(t, reconcile.DefaultMessages().Canceled, status.StatusMessage)
}

func TestSubmit_LoadsPersistedSettingsWhenOmitted(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.coord.cfg.Persist.SaveSettings(testTenant, enabledSettings()))

	_, err := env.coord.Submit(SubmitRequest{Tenant: env.tenant, Kind: api.OpSyncApply})
	require.NoError(t, err)

	status := waitFinished(t, env)
	assert.Empty(t, status.Error)
}

func TestSubmit_NoSettingsAnywhereFailsJob(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.coord.Submit(SubmitRequest{Tenant: env.tenant, Kind: api.OpSyncApply})
	require.NoError(t, err)

	status := waitFinished(t, env)
	assert.Equal(t, reconcile.DefaultMessages().ErrorText(api.CodeCantGetSettings), status.Error)
}
