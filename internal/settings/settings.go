package settings

import (
	"reflect"
	"strings"

	"dirsync/internal/api"
)

// AttributeMapping names the directory attributes that feed each local
// user field.
type AttributeMapping struct {
	Login     string `yaml:"login"`
	FirstName string `yaml:"firstName"`
	LastName  string `yaml:"lastName"`
	Email     string `yaml:"email"`

	// Avatar is the binary photo attribute. Empty disables avatar sync
	// and wipes the avatar cache on the next run.
	Avatar string `yaml:"avatar,omitempty"`
}

// Settings is the connection and mapping configuration for one tenant's
// directory integration.
type Settings struct {
	// Enabled turns the whole directory integration on or off. When a
	// run executes with Enabled false it follows the turn-off path:
	// Sids are cleared and cached state is reset.
	Enabled bool `yaml:"enabled"`

	// Server is the directory server URI (ldap:// or ldaps://).
	Server string `yaml:"server"`

	// StartTLS upgrades a plain connection before binding.
	StartTLS bool `yaml:"startTls,omitempty"`

	// Authentication requires a non-anonymous service bind. When false
	// any stored credential is erased before persistence.
	Authentication bool   `yaml:"authentication"`
	Login          string `yaml:"login,omitempty"`
	Password       string `yaml:"password,omitempty"`

	// UserDN and UserFilter select the user population.
	UserDN     string `yaml:"userDn"`
	UserFilter string `yaml:"userFilter"`

	// SidAttribute is the attribute carrying the stable external
	// identifier.
	SidAttribute string `yaml:"sidAttribute"`

	Mapping AttributeMapping `yaml:"mapping"`

	// GroupMembership enables group-scoped sync. When enabled the group
	// fields below are mandatory.
	GroupMembership    bool   `yaml:"groupMembership"`
	GroupDN            string `yaml:"groupDn,omitempty"`
	GroupFilter        string `yaml:"groupFilter,omitempty"`
	GroupAttribute     string `yaml:"groupAttribute,omitempty"`
	GroupNameAttribute string `yaml:"groupNameAttribute,omitempty"`

	// AccessRights maps an admin right to a comma-separated list of
	// directory group name patterns whose members receive the right.
	AccessRights map[api.AccessRight]string `yaml:"accessRights,omitempty"`

	// PageSize bounds directory search pages. Zero means the default.
	PageSize int `yaml:"pageSize,omitempty"`

	// IsDefault is computed on save by structural comparison against
	// the known default configuration. It is not set by operators.
	IsDefault bool `yaml:"isDefault,omitempty"`
}

// Default returns the known default configuration. A settings object that
// structurally equals it (ignoring the IsDefault flag itself) is flagged
// IsDefault on save.
func Default() Settings {
	return Settings{
		Server:       "",
		UserFilter:   "(objectClass=person)",
		SidAttribute: "entryUUID",
		Mapping: AttributeMapping{
			Login:     "uid",
			FirstName: "givenName",
			LastName:  "sn",
			Email:     "mail",
		},
		GroupFilter:        "(objectClass=groupOfNames)",
		GroupAttribute:     "member",
		GroupNameAttribute: "cn",
	}
}

// Trim strips surrounding whitespace from every textual field, in place.
func (s *Settings) Trim() {
	fields := []*string{
		&s.Server, &s.Login, &s.UserDN, &s.UserFilter, &s.SidAttribute,
		&s.Mapping.Login, &s.Mapping.FirstName, &s.Mapping.LastName,
		&s.Mapping.Email, &s.Mapping.Avatar,
		&s.GroupDN, &s.GroupFilter, &s.GroupAttribute, &s.GroupNameAttribute,
	}
	for _, f := range fields {
		*f = strings.TrimSpace(*f)
	}
	for right, patterns := range s.AccessRights {
		s.AccessRights[right] = strings.TrimSpace(patterns)
	}
}

// Validate trims the settings and checks every field a run depends on.
// A missing required field aborts the whole run, unlike per-entity
// failures which are logged and skipped.
func (s *Settings) Validate() error {
	s.Trim()

	if !s.Enabled {
		return nil
	}

	required := []struct {
		name  string
		value string
	}{
		{"server", s.Server},
		{"user search base", s.UserDN},
		{"login attribute", s.Mapping.Login},
		{"sid attribute", s.SidAttribute},
	}
	if s.GroupMembership {
		required = append(required,
			struct{ name, value string }{"group search base", s.GroupDN},
			struct{ name, value string }{"group filter", s.GroupFilter},
			struct{ name, value string }{"group membership attribute", s.GroupAttribute},
			struct{ name, value string }{"group name attribute", s.GroupNameAttribute},
		)
	}
	if s.Authentication {
		required = append(required,
			struct{ name, value string }{"login", s.Login},
			struct{ name, value string }{"password", s.Password},
		)
	}

	for _, f := range required {
		if f.value == "" {
			return api.NewReconcileError(api.CodeSettings, "required field missing: %s", f.name)
		}
	}

	if !strings.HasPrefix(s.Server, "ldap://") && !strings.HasPrefix(s.Server, "ldaps://") {
		return api.NewReconcileError(api.CodeSettings, "server must be an ldap:// or ldaps:// URI, got %q", s.Server)
	}

	return nil
}

// Sanitize enforces the credential-erasure invariant: when authentication
// is disabled any stored credential must not survive persistence.
func (s *Settings) Sanitize() {
	if !s.Authentication {
		s.Login = ""
		s.Password = ""
	}
}

// EqualsDefault reports whether s structurally matches the default
// configuration, ignoring the IsDefault flag itself.
func (s Settings) EqualsDefault() bool {
	d := Default()
	s.IsDefault = false
	d.IsDefault = false
	return reflect.DeepEqual(s, d)
}

// ClearAccessRights drops the configured right-to-group mapping. Used by
// the turn-off path together with resetting the rights snapshot.
func (s *Settings) ClearAccessRights() {
	s.AccessRights = nil
}
