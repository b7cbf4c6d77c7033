package directory

import (
	"context"
	"errors"
	"net"
	"testing"

	"dirsync/internal/api"
	"dirsync/internal/settings"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSettings() *settings.Settings {
	cfg := settings.Default()
	cfg.Enabled = true
	cfg.Server = "ldap://directory.example.com"
	cfg.UserDN = "ou=people,dc=example,dc=com"
	cfg.GroupDN = "ou=groups,dc=example,dc=com"
	cfg.GroupMembership = true
	return &cfg
}

// fakeConn implements ldapConn for tests.
type fakeConn struct {
	bindErr    error
	searchFunc func(req *ldapv3.SearchRequest) (*ldapv3.SearchResult, error)
	closed     bool
}

func (f *fakeConn) Bind(username, password string) error  { return f.bindErr }
func (f *fakeConn) UnauthenticatedBind(string) error      { return f.bindErr }
func (f *fakeConn) Close() error                          { f.closed = true; return nil }
func (f *fakeConn) Search(req *ldapv3.SearchRequest) (*ldapv3.SearchResult, error) {
	return f.searchFunc(req)
}
func (f *fakeConn) SearchWithPaging(req *ldapv3.SearchRequest, _ uint32) (*ldapv3.SearchResult, error) {
	return f.searchFunc(req)
}

func TestBind_ClassifiesOutcomes(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want api.ConnectStatus
	}{
		{"success", nil, api.ConnectOK},
		{"invalid credentials", ldapv3.NewError(ldapv3.LDAPResultInvalidCredentials, errors.New("bind failed")), api.ConnectWrongCredentials},
		{"bad base dn", ldapv3.NewError(ldapv3.LDAPResultNoSuchObject, errors.New("no such object")), api.ConnectBadSearchBase},
		{"strong auth required", ldapv3.NewError(ldapv3.LDAPResultStrongAuthRequired, errors.New("tls required")), api.ConnectStrongAuthRequired},
		{"bad filter", ldapv3.NewError(ldapv3.ErrorFilterCompile, errors.New("bad filter")), api.ConnectInvalidFilter},
		{"domain not found", &net.DNSError{Err: "no such host", Name: "directory.example.com", IsNotFound: true}, api.ConnectDomainNotFound},
		{"transport failure", errors.New("connection refused"), api.ConnectError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := &Client{conn: &fakeConn{bindErr: tc.err}, cfg: testSettings()}
			result := c.Bind(context.Background(), "cn=service", "secret")
			assert.Equal(t, tc.want, result.Status)
		})
	}
}

func TestListUsers_MapsEntries(t *testing.T) {
	cfg := testSettings()
	conn := &fakeConn{
		searchFunc: func(req *ldapv3.SearchRequest) (*ldapv3.SearchResult, error) {
			assert.Equal(t, cfg.UserDN, req.BaseDN)
			return &ldapv3.SearchResult{Entries: []*ldapv3.Entry{
				ldapv3.NewEntry("uid=alice,ou=people,dc=example,dc=com", map[string][]string{
					"entryUUID": {"s-1"},
					"uid":       {"alice"},
					"givenName": {"Alice"},
					"sn":        {"Smith"},
					"mail":      {"alice@example.com"},
				}),
				ldapv3.NewEntry("uid=bob,ou=people,dc=example,dc=com", map[string][]string{
					"entryUUID":          {"s-2"},
					"uid":                {"bob"},
					"userAccountControl": {"514"}, // disabled flag set
				}),
			}}, nil
		},
	}
	c := &Client{conn: conn, cfg: cfg}

	users, err := c.ListUsers(context.Background())
	require.NoError(t, err)
	require.Len(t, users, 2)

	assert.Equal(t, "s-1", users[0].Sid)
	assert.Equal(t, "alice", users[0].Login)
	assert.Equal(t, "Alice", users[0].FirstName)
	assert.Equal(t, "alice@example.com", users[0].Email)
	assert.False(t, users[0].Disabled)

	assert.True(t, users[1].Disabled)
}

func TestListGroups_MapsEntries(t *testing.T) {
	cfg := testSettings()
	conn := &fakeConn{
		searchFunc: func(req *ldapv3.SearchRequest) (*ldapv3.SearchResult, error) {
			assert.Equal(t, cfg.GroupDN, req.BaseDN)
			return &ldapv3.SearchResult{Entries: []*ldapv3.Entry{
				ldapv3.NewEntry("cn=devs,ou=groups,dc=example,dc=com", map[string][]string{
					"entryUUID": {"g-1"},
					"cn":        {"devs"},
					"member": {
						"uid=alice,ou=people,dc=example,dc=com",
						"uid=bob,ou=people,dc=example,dc=com",
					},
				}),
			}}, nil
		},
	}
	c := &Client{conn: conn, cfg: cfg}

	groups, err := c.ListGroups(context.Background())
	require.NoError(t, err)
	require.Len(t, groups, 1)
	assert.Equal(t, "g-1", groups[0].Sid)
	assert.Equal(t, "devs", groups[0].Name)
	assert.Len(t, groups[0].MemberValues, 2)
}

func TestResolveGroupMembers_SkipsStaleDNs(t *testing.T) {
	cfg := testSettings()
	conn := &fakeConn{
		searchFunc: func(req *ldapv3.SearchRequest) (*ldapv3.SearchResult, error) {
			if req.BaseDN == "uid=gone,ou=people,dc=example,dc=com" {
				return nil, ldapv3.NewError(ldapv3.LDAPResultNoSuchObject, errors.New("gone"))
			}
			return &ldapv3.SearchResult{Entries: []*ldapv3.Entry{
				ldapv3.NewEntry(req.BaseDN, map[string][]string{
					"entryUUID": {"s-1"},
					"uid":       {"alice"},
				}),
			}}, nil
		},
	}
	c := &Client{conn: conn, cfg: cfg}

	group := api.DirectoryGroup{Name: "devs", MemberValues: []string{
		"uid=alice,ou=people,dc=example,dc=com",
		"uid=gone,ou=people,dc=example,dc=com",
	}}

	users, err := c.ResolveGroupMembers(context.Background(), group)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "alice", users[0].Login)
}

func TestSplitPatterns(t *testing.T) {
	assert.Equal(t, []string{"Admins", "Operators"}, splitPatterns(" Admins , Operators "))
	assert.Equal(t, []string{"Admins"}, splitPatterns("Admins,,  "))
	assert.Nil(t, splitPatterns(""))
}

func TestMatchGroupsByName_CaseFolded(t *testing.T) {
	groups := []api.DirectoryGroup{
		{Sid: "g-1", Name: "Admins"},
		{Sid: "g-2", Name: "operators"},
		{Sid: "g-3", Name: "Guests"},
	}

	got := matchGroupsByName(groups, []string{"ADMINS", "Operators"})
	require.Len(t, got, 2)
	assert.Equal(t, "g-1", got[0].Sid)
	assert.Equal(t, "g-2", got[1].Sid)
}

func TestServerHostPort(t *testing.T) {
	assert.Equal(t, "host:636", serverHostPort("ldaps://host"))
	assert.Equal(t, "host:389", serverHostPort("ldap://host"))
	assert.Equal(t, "host:10389", serverHostPort("ldap://host:10389"))
	assert.Equal(t, "", serverHostPort("http://host"))
}
