package directory

import (
	"strconv"

	"dirsync/internal/api"
	"dirsync/internal/settings"

	ldapv3 "github.com/go-ldap/ldap/v3"
)

// accountDisabledBit is the ACCOUNTDISABLE flag of the Active Directory
// userAccountControl attribute.
const accountDisabledBit = 0x2

const userAccountControlAttr = "userAccountControl"

func userSearchAttributes(cfg *settings.Settings) []string {
	attrs := []string{
		cfg.SidAttribute,
		cfg.Mapping.Login,
		userAccountControlAttr,
	}
	for _, a := range []string{cfg.Mapping.FirstName, cfg.Mapping.LastName, cfg.Mapping.Email, cfg.Mapping.Avatar} {
		if a != "" {
			attrs = append(attrs, a)
		}
	}
	return attrs
}

func groupSearchAttributes(cfg *settings.Settings) []string {
	return []string{cfg.SidAttribute, cfg.GroupNameAttribute, cfg.GroupAttribute}
}

// entryToUser applies the configured attribute mapping to a raw entry.
// An entry missing the sid attribute yields a snapshot with an empty
// Sid, which downstream code treats as the unresolvable "lost user".
func entryToUser(cfg *settings.Settings, entry *ldapv3.Entry) api.DirectoryUser {
	u := api.DirectoryUser{
		Sid:        entry.GetAttributeValue(cfg.SidAttribute),
		Login:      entry.GetAttributeValue(cfg.Mapping.Login),
		Attributes: make(map[string][]string, len(entry.Attributes)),
	}
	if cfg.Mapping.FirstName != "" {
		u.FirstName = entry.GetAttributeValue(cfg.Mapping.FirstName)
	}
	if cfg.Mapping.LastName != "" {
		u.LastName = entry.GetAttributeValue(cfg.Mapping.LastName)
	}
	if cfg.Mapping.Email != "" {
		u.Email = entry.GetAttributeValue(cfg.Mapping.Email)
	}
	if cfg.Mapping.Avatar != "" {
		u.Avatar = entry.GetRawAttributeValue(cfg.Mapping.Avatar)
	}

	if uac := entry.GetAttributeValue(userAccountControlAttr); uac != "" {
		if flags, err := strconv.Atoi(uac); err == nil && flags&accountDisabledBit != 0 {
			u.Disabled = true
		}
	}

	for _, attr := range entry.Attributes {
		u.Attributes[attr.Name] = attr.Values
	}
	return u
}

// entryToGroup applies the configured group mapping to a raw entry.
func entryToGroup(cfg *settings.Settings, entry *ldapv3.Entry) api.DirectoryGroup {
	return api.DirectoryGroup{
		Sid:          entry.GetAttributeValue(cfg.SidAttribute),
		Name:         entry.GetAttributeValue(cfg.GroupNameAttribute),
		MemberValues: entry.GetAttributeValues(cfg.GroupAttribute),
	}
}
