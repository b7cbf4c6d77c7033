package api

// Tenant identifies one isolated customer scope. Every store operation and
// every reconciliation run is bound to exactly one tenant.
type Tenant struct {
	// ID is the tenant identifier used to key all persisted records.
	ID string

	// OwnerID is the local user id of the tenant owner. The owner is
	// protected from demotion during reconciliation.
	OwnerID string
}

// DirectoryUser is a read-only snapshot of one user entry produced by a
// DirectorySource for the duration of a single reconciliation run. It is
// never persisted directly.
type DirectoryUser struct {
	// Sid is the stable external identifier linking this entry to a
	// local user. An empty Sid means the entry could not be resolved.
	Sid string

	// Login is the value of the mapped login attribute.
	Login string

	FirstName string
	LastName  string
	Email     string

	// Avatar holds the raw bytes of the mapped photo attribute, if any.
	Avatar []byte

	// Disabled reports whether the directory marks this account as
	// disabled. Disabled users are synced with Terminated status.
	Disabled bool

	// Attributes carries the raw attribute map for diagnostics and for
	// mappings not covered by the typed fields above.
	Attributes map[string][]string
}

// DirectoryGroup is a read-only snapshot of one group entry produced by a
// DirectorySource for the duration of a single reconciliation run.
type DirectoryGroup struct {
	// Sid is the stable external identifier linking this entry to a
	// local group.
	Sid string

	// Name is the value of the mapped group name attribute.
	Name string

	// MemberValues holds the raw values of the membership attribute
	// (typically member DNs). Use DirectorySource.ResolveGroupMembers to
	// turn them into DirectoryUser snapshots.
	MemberValues []string
}

// UserStatus describes the lifecycle state of a local user.
type UserStatus string

const (
	// UserActive is the normal state of a local user.
	UserActive UserStatus = "active"

	// UserTerminated marks a local user that was removed from the
	// directory population and demoted by a reconciliation run.
	UserTerminated UserStatus = "terminated"
)

// ContactKind distinguishes ordinary portal users from external contacts.
type ContactKind string

const (
	ContactOrdinary ContactKind = "ordinary"
	ContactExternal ContactKind = "external"
)

// LocalUser is a persistent user entity keyed by tenant + ID.
type LocalUser struct {
	ID       string
	TenantID string

	// Sid links the user to a directory identity. Empty means the user
	// is not directory-managed and must never be mutated by the engine.
	Sid string

	Login     string
	FirstName string
	LastName  string
	Email     string

	Status      UserStatus
	ContactKind ContactKind

	// Service marks recognized system/service accounts, which are
	// excluded from access-right grants.
	Service bool
}

// LocalGroup is a persistent group entity keyed by tenant + ID.
type LocalGroup struct {
	ID       string
	TenantID string

	// Sid links the group to a directory identity. Empty means the
	// group is not directory-managed.
	Sid string

	Name string
}

// LostUserID and LostGroupID are sentinel identifiers standing in for a
// directory entity that could not be resolved to a local counterpart.
// Membership-building code must filter them out via IsLostUser/IsLostGroup.
const (
	LostUserID  = "lost-user"
	LostGroupID = "lost-group"
)

// LostUser returns the sentinel local user used when a directory user has
// no resolvable identity.
func LostUser() LocalUser { return LocalUser{ID: LostUserID} }

// LostGroup returns the sentinel local group used when a directory group
// has no resolvable identity.
func LostGroup() LocalGroup { return LocalGroup{ID: LostGroupID} }

// IsLostUser reports whether u is the unresolved-user sentinel.
func IsLostUser(u LocalUser) bool { return u.ID == LostUserID }

// IsLostGroup reports whether g is the unresolved-group sentinel.
func IsLostGroup(g LocalGroup) bool { return g.ID == LostGroupID }

// AccessRight is an administrative capability grantable to a local user,
// derivable from directory group membership.
type AccessRight string

const (
	RightAdmin     AccessRight = "admin"
	RightDocuments AccessRight = "documents"
	RightProjects  AccessRight = "projects"
	RightPeople    AccessRight = "people"
	RightMail      AccessRight = "mail"
)

// KnownAccessRights lists every right the engine can grant, in a stable
// order used for deterministic iteration.
func KnownAccessRights() []AccessRight {
	return []AccessRight{RightAdmin, RightDocuments, RightProjects, RightPeople, RightMail}
}

// AccessRightsSnapshot records the {right -> user ids} grants produced by
// a previous reconciliation run. The next run diffs against it instead of
// re-granting everything.
type AccessRightsSnapshot struct {
	Granted map[AccessRight][]string `yaml:"granted" json:"granted"`
}

// NewAccessRightsSnapshot returns an empty snapshot ready for use.
func NewAccessRightsSnapshot() AccessRightsSnapshot {
	return AccessRightsSnapshot{Granted: make(map[AccessRight][]string)}
}

// AvatarHashMap records the content hash of the last synced photo per
// local user id, so unchanged photos can be skipped.
type AvatarHashMap struct {
	Hashes map[string]string `yaml:"hashes" json:"hashes"`
}

// NewAvatarHashMap returns an empty hash map ready for use.
func NewAvatarHashMap() AvatarHashMap {
	return AvatarHashMap{Hashes: make(map[string]string)}
}
