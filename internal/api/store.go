package api

import "context"

// Principal identifies who a store mutation is attributed to.
type Principal string

// SystemPrincipal attributes writes to the reconciliation engine rather
// than the end user who triggered the run.
const SystemPrincipal Principal = "system"

type principalKey struct{}

// WithPrincipal returns a context carrying the acting principal.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom extracts the acting principal from the context, if any.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// LocalStore is the tenant-scoped persistence boundary of the engine. All
// methods are implicitly scoped by the tenant id they receive; no call
// may touch another tenant's records.
//
// Implementations must enforce that a non-empty Sid is unique among the
// users, and separately among the groups, of one tenant.
type LocalStore interface {
	// TenantOwner returns the local user id of the tenant owner.
	TenantOwner(ctx context.Context, tenantID string) (string, error)

	// GetUser returns the user with the given id.
	GetUser(ctx context.Context, tenantID, userID string) (LocalUser, bool, error)

	// FindUserBySid returns the user linked to the given directory
	// identity, if any.
	FindUserBySid(ctx context.Context, tenantID, sid string) (LocalUser, bool, error)

	// ListUsers returns all users of the tenant.
	ListUsers(ctx context.Context, tenantID string) ([]LocalUser, error)

	// SaveUser creates or updates a user. A user with an empty ID is
	// created and the assigned ID returned.
	SaveUser(ctx context.Context, tenantID string, u LocalUser) (LocalUser, error)

	// FindGroupBySid returns the group linked to the given directory
	// identity, if any.
	FindGroupBySid(ctx context.Context, tenantID, sid string) (LocalGroup, bool, error)

	// ListGroups returns all groups of the tenant.
	ListGroups(ctx context.Context, tenantID string) ([]LocalGroup, error)

	// SaveGroup creates or updates a group. A group with an empty ID is
	// created and the assigned ID returned.
	SaveGroup(ctx context.Context, tenantID string, g LocalGroup) (LocalGroup, error)

	// DeleteGroup removes a group and its memberships.
	DeleteGroup(ctx context.Context, tenantID, groupID string) error

	// GroupMembers returns the user ids belonging to a group.
	GroupMembers(ctx context.Context, tenantID, groupID string) ([]string, error)

	// AddGroupMember adds a user to a group. Adding an existing member
	// is a no-op.
	AddGroupMember(ctx context.Context, tenantID, groupID, userID string) error

	// RemoveGroupMember removes a user from a group. Removing a
	// non-member is a no-op.
	RemoveGroupMember(ctx context.Context, tenantID, groupID, userID string) error

	// GrantAccessRight grants an admin right to a user. Granting an
	// already held right is a no-op.
	GrantAccessRight(ctx context.Context, tenantID string, right AccessRight, userID string) error

	// RevokeAccessRight revokes an admin right from a user. Revoking a
	// right the user does not hold is a no-op.
	RevokeAccessRight(ctx context.Context, tenantID string, right AccessRight, userID string) error

	// RevokeAllAccessRights strips every admin right from a user.
	RevokeAllAccessRights(ctx context.Context, tenantID, userID string) error

	// AccessRightHolders returns the user ids currently holding a right.
	AccessRightHolders(ctx context.Context, tenantID string, right AccessRight) ([]string, error)

	// SaveAvatar writes or replaces the cached photo for a user.
	SaveAvatar(ctx context.Context, tenantID, userID string, data []byte) error

	// DeleteAvatar removes the cached photo for a user. Deleting a
	// missing photo is a no-op.
	DeleteAvatar(ctx context.Context, tenantID, userID string) error

	// ListAvatarUserIDs returns the user ids that currently have a
	// cached photo.
	ListAvatarUserIDs(ctx context.Context, tenantID string) ([]string, error)
}
