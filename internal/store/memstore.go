// Package store provides the in-memory LocalStore implementation used by
// the standalone CLI mode and by tests. A production deployment plugs a
// database-backed implementation into the same interface.
package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"dirsync/internal/api"

	"github.com/google/uuid"
)

type tenantData struct {
	ownerID string
	users   map[string]api.LocalUser
	groups  map[string]api.LocalGroup
	// members maps group id -> set of user ids
	members map[string]map[string]bool
	// rights maps access right -> set of user ids
	rights  map[api.AccessRight]map[string]bool
	avatars map[string][]byte
}

// MemStore is a mutex-guarded in-memory api.LocalStore. It enforces the
// per-tenant Sid uniqueness invariant and an optional per-tenant user
// quota.
type MemStore struct {
	mu sync.RWMutex

	tenants map[string]*tenantData

	// MaxUsersPerTenant bounds the user count per tenant. Zero means
	// unlimited. Exceeding it surfaces api.ErrQuotaExceeded.
	MaxUsersPerTenant int
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{tenants: make(map[string]*tenantData)}
}

func (m *MemStore) tenant(tenantID string) *tenantData {
	td, ok := m.tenants[tenantID]
	if !ok {
		td = &tenantData{
			users:   make(map[string]api.LocalUser),
			groups:  make(map[string]api.LocalGroup),
			members: make(map[string]map[string]bool),
			rights:  make(map[api.AccessRight]map[string]bool),
			avatars: make(map[string][]byte),
		}
		m.tenants[tenantID] = td
	}
	return td
}


// peek returns the tenant data without creating it. Read paths must use
// it so lazy creation only ever happens under the write lock.
func (m *MemStore) peek(tenantID string) (*tenantData, bool) {
	td, ok := m.tenants[tenantID]
	return td, ok
}

// SetTenantOwner records the tenant owner id. Used by tests and by the
// bootstrap path of the standalone mode.
func (m *MemStore) SetTenantOwner(tenantID, userID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tenant(tenantID).ownerID = userID
}

// TenantOwner returns the local user id of the tenant owner.
func (m *MemStore) TenantOwner(_ context.Context, tenantID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, ok := m.peek(tenantID)
	if !ok {
		return "", nil
	}
	return td.ownerID, nil
}

// GetUser returns the user with the given id.
func (m *MemStore) GetUser(_ context.Context, tenantID, userID string) (api.LocalUser, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, ok := m.peek(tenantID)
	if !ok {
		return api.LocalUser{}, false, nil
	}
	u, ok := td.users[userID]
	return u, ok, nil
}

// FindUserBySid returns the user linked to the given directory identity.
func (m *MemStore) FindUserBySid(_ context.Context, tenantID, sid string) (api.LocalUser, bool, error) {
	if sid == "" {
		return api.LocalUser{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if td, ok := m.peek(tenantID); ok {
		for _, u := range td.users {
			if u.Sid == sid {
				return u, true, nil
			}
		}
	}
	return api.LocalUser{}, false, nil
}

// ListUsers returns all users of the tenant in a stable order.
func (m *MemStore) ListUsers(_ context.Context, tenantID string) ([]api.LocalUser, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, _ := m.peek(tenantID)
	if td == nil {
		return nil, nil
	}
	out := make([]api.LocalUser, 0, len(td.users))
	for _, u := range td.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveUser creates or updates a user, enforcing Sid uniqueness and the
// user quota.
func (m *MemStore) SaveUser(_ context.Context, tenantID string, u api.LocalUser) (api.LocalUser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenant(tenantID)

	if u.Sid != "" {
		for _, existing := range td.users {
			if existing.Sid == u.Sid && existing.ID != u.ID {
				return api.LocalUser{}, fmt.Errorf("sid %q already linked to user %s", u.Sid, existing.ID)
			}
		}
	}

	if u.ID == "" {
		if m.MaxUsersPerTenant > 0 && len(td.users) >= m.MaxUsersPerTenant {
			return api.LocalUser{}, api.ErrQuotaExceeded
		}
		u.ID = uuid.NewString()
	}
	u.TenantID = tenantID
	td.users[u.ID] = u
	return u, nil
}

// FindGroupBySid returns the group linked to the given directory identity.
func (m *MemStore) FindGroupBySid(_ context.Context, tenantID, sid string) (api.LocalGroup, bool, error) {
	if sid == "" {
		return api.LocalGroup{}, false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if td, ok := m.peek(tenantID); ok {
		for _, g := range td.groups {
			if g.Sid == sid {
				return g, true, nil
			}
		}
	}
	return api.LocalGroup{}, false, nil
}

// ListGroups returns all groups of the tenant in a stable order.
func (m *MemStore) ListGroups(_ context.Context, tenantID string) ([]api.LocalGroup, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, _ := m.peek(tenantID)
	if td == nil {
		return nil, nil
	}
	out := make([]api.LocalGroup, 0, len(td.groups))
	for _, g := range td.groups {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// SaveGroup creates or updates a group, enforcing Sid uniqueness.
func (m *MemStore) SaveGroup(_ context.Context, tenantID string, g api.LocalGroup) (api.LocalGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenant(tenantID)

	if g.Sid != "" {
		for _, existing := range td.groups {
			if existing.Sid == g.Sid && existing.ID != g.ID {
				return api.LocalGroup{}, fmt.Errorf("sid %q already linked to group %s", g.Sid, existing.ID)
			}
		}
	}

	if g.ID == "" {
		g.ID = uuid.NewString()
	}
	g.TenantID = tenantID
	td.groups[g.ID] = g
	return g, nil
}

// DeleteGroup removes a group and its memberships.
func (m *MemStore) DeleteGroup(_ context.Context, tenantID, groupID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenant(tenantID)
	delete(td.groups, groupID)
	delete(td.members, groupID)
	return nil
}

// GroupMembers returns the user ids belonging to a group in a stable
// order.
func (m *MemStore) GroupMembers(_ context.Context, tenantID, groupID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var set map[string]bool
	if td, ok := m.peek(tenantID); ok {
		set = td.members[groupID]
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// AddGroupMember adds a user to a group.
func (m *MemStore) AddGroupMember(_ context.Context, tenantID, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenant(tenantID)
	if _, ok := td.groups[groupID]; !ok {
		return fmt.Errorf("group %s not found", groupID)
	}
	set, ok := td.members[groupID]
	if !ok {
		set = make(map[string]bool)
		td.members[groupID] = set
	}
	set[userID] = true
	return nil
}

// RemoveGroupMember removes a user from a group.
func (m *MemStore) RemoveGroupMember(_ context.Context, tenantID, groupID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenant(tenantID).members[groupID], userID)
	return nil
}

// GrantAccessRight grants an admin right to a user.
func (m *MemStore) GrantAccessRight(_ context.Context, tenantID string, right api.AccessRight, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	td := m.tenant(tenantID)
	set, ok := td.rights[right]
	if !ok {
		set = make(map[string]bool)
		td.rights[right] = set
	}
	set[userID] = true
	return nil
}

// RevokeAccessRight revokes an admin right from a user.
func (m *MemStore) RevokeAccessRight(_ context.Context, tenantID string, right api.AccessRight, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenant(tenantID).rights[right], userID)
	return nil
}

// RevokeAllAccessRights strips every admin right from a user.
func (m *MemStore) RevokeAllAccessRights(_ context.Context, tenantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, set := range m.tenant(tenantID).rights {
		delete(set, userID)
	}
	return nil
}

// AccessRightHolders returns the user ids currently holding a right in a
// stable order.
func (m *MemStore) AccessRightHolders(_ context.Context, tenantID string, right api.AccessRight) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var set map[string]bool
	if td, ok := m.peek(tenantID); ok {
		set = td.rights[right]
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// SaveAvatar writes or replaces the cached photo for a user.
func (m *MemStore) SaveAvatar(_ context.Context, tenantID, userID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := make([]byte, len(data))
	copy(buf, data)
	m.tenant(tenantID).avatars[userID] = buf
	return nil
}

// DeleteAvatar removes the cached photo for a user.
func (m *MemStore) DeleteAvatar(_ context.Context, tenantID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tenant(tenantID).avatars, userID)
	return nil
}

// ListAvatarUserIDs returns the user ids with a cached photo in a stable
// order.
func (m *MemStore) ListAvatarUserIDs(_ context.Context, tenantID string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, _ := m.peek(tenantID)
	if td == nil {
		return nil, nil
	}
	out := make([]string, 0, len(td.avatars))
	for id := range td.avatars {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

// Avatar returns the cached photo bytes for a user. Test helper.
func (m *MemStore) Avatar(tenantID, userID string) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	td, ok := m.peek(tenantID)
	if !ok {
		return nil, false
	}
	data, ok := td.avatars[userID]
	return data, ok
}

var _ api.LocalStore = (*MemStore)(nil)
