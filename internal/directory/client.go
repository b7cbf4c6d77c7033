package directory

import (
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"strings"

	"dirsync/internal/api"
	"dirsync/internal/settings"
	"dirsync/pkg/logging"

	ldapv3 "github.com/go-ldap/ldap/v3"
	"golang.org/x/text/cases"
)

const defaultPageSize = 1000

// Client is an LDAP-backed api.DirectorySource for one configured
// connection. It is bound to one reconciliation run and is not safe for
// concurrent use.
type Client struct {
	conn ldapConn
	cfg  *settings.Settings
}

// ldapConn is the subset of *ldapv3.Conn the client uses. Tests
// substitute a fake.
type ldapConn interface {
	Bind(username, password string) error
	UnauthenticatedBind(username string) error
	SearchWithPaging(searchRequest *ldapv3.SearchRequest, pagingSize uint32) (*ldapv3.SearchResult, error)
	Search(searchRequest *ldapv3.SearchRequest) (*ldapv3.SearchResult, error)
	Close() error
}

// Open dials the configured server and returns a connected client.
// confirmedCert is the certificate token a caller echoes back after
// accepting an untrusted certificate; when set, a server presenting a
// certificate with that fingerprint is trusted.
func Open(ctx context.Context, cfg *settings.Settings, confirmedCert string) (*Client, error) {
	tlsCfg := &tls.Config{}
	if confirmedCert != "" {
		tlsCfg.InsecureSkipVerify = true
		tlsCfg.VerifyConnection = func(cs tls.ConnectionState) error {
			if len(cs.PeerCertificates) == 0 {
				return errors.New("server presented no certificate")
			}
			if certificateToken(cs.PeerCertificates[0]) != confirmedCert {
				return errors.New("server certificate does not match the confirmed fingerprint")
			}
			return nil
		}
	}

	conn, err := ldapv3.DialURL(cfg.Server, ldapv3.DialWithTLSConfig(tlsCfg))
	if err != nil {
		return nil, err
	}

	if cfg.StartTLS {
		if err := conn.StartTLS(tlsCfg); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logging.Debug("Directory", "Connected to %s", cfg.Server)
	return &Client{conn: conn, cfg: cfg}, nil
}

// Bind authenticates the connection and classifies the outcome for the
// engine's error mapping table.
func (c *Client) Bind(_ context.Context, login, password string) api.ConnectResult {
	var err error
	if login == "" {
		err = c.conn.UnauthenticatedBind("")
	} else {
		err = c.conn.Bind(login, password)
	}
	if err == nil {
		return api.ConnectResult{Status: api.ConnectOK}
	}
	return ClassifyError(c.cfg, err)
}

// Close releases the underlying connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func (c *Client) pageSize() uint32 {
	if c.cfg.PageSize > 0 {
		return uint32(c.cfg.PageSize)
	}
	return defaultPageSize
}

// ListUsers returns every directory user matching the configured filter.
func (c *Client) ListUsers(ctx context.Context) ([]api.DirectoryUser, error) {
	filter := c.cfg.UserFilter
	if filter == "" {
		filter = "(objectClass=*)"
	}

	entries, err := c.search(ctx, c.cfg.UserDN, filter, userSearchAttributes(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("searching users under %s: %w", c.cfg.UserDN, err)
	}

	users := make([]api.DirectoryUser, 0, len(entries))
	for _, entry := range entries {
		users = append(users, entryToUser(c.cfg, entry))
	}
	return users, nil
}

// ListGroups returns every directory group matching the configured
// filter.
func (c *Client) ListGroups(ctx context.Context) ([]api.DirectoryGroup, error) {
	entries, err := c.search(ctx, c.cfg.GroupDN, c.cfg.GroupFilter, groupSearchAttributes(c.cfg))
	if err != nil {
		return nil, fmt.Errorf("searching groups under %s: %w", c.cfg.GroupDN, err)
	}

	groups := make([]api.DirectoryGroup, 0, len(entries))
	for _, entry := range entries {
		groups = append(groups, entryToGroup(c.cfg, entry))
	}
	return groups, nil
}

// ResolveGroupMembers materializes a group's member values into
// directory user snapshots. Member values that do not resolve to a user
// entry are dropped with a debug log; a group referencing a stale DN
// must not fail the run.
func (c *Client) ResolveGroupMembers(ctx context.Context, group api.DirectoryGroup) ([]api.DirectoryUser, error) {
	users := make([]api.DirectoryUser, 0, len(group.MemberValues))
	for _, member := range group.MemberValues {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, err := c.lookupByDN(member)
		if err != nil {
			logging.Debug("Directory", "Member %q of group %q did not resolve: %v", member, group.Name, err)
			continue
		}
		users = append(users, entryToUser(c.cfg, entry))
	}
	return users, nil
}

// FindGroupsByNamePattern returns the directory groups whose name
// matches any of the comma-separated patterns. Matching is case-folded;
// patterns are trimmed and empty ones skipped.
func (c *Client) FindGroupsByNamePattern(ctx context.Context, patterns string) ([]api.DirectoryGroup, error) {
	wanted := splitPatterns(patterns)
	if len(wanted) == 0 {
		return nil, nil
	}

	all, err := c.ListGroups(ctx)
	if err != nil {
		return nil, err
	}
	return matchGroupsByName(all, wanted), nil
}

func (c *Client) search(ctx context.Context, baseDN, filter string, attributes []string) ([]*ldapv3.Entry, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	req := ldapv3.NewSearchRequest(baseDN,
		ldapv3.ScopeWholeSubtree, ldapv3.NeverDerefAliases, 0, 0, false,
		filter, attributes, nil)

	result, err := c.conn.SearchWithPaging(req, c.pageSize())
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

func (c *Client) lookupByDN(dn string) (*ldapv3.Entry, error) {
	req := ldapv3.NewSearchRequest(dn,
		ldapv3.ScopeBaseObject, ldapv3.NeverDerefAliases, 0, 0, false,
		"(objectClass=*)", userSearchAttributes(c.cfg), nil)

	result, err := c.conn.Search(req)
	if err != nil {
		return nil, err
	}
	if len(result.Entries) == 0 {
		return nil, fmt.Errorf("no entry at %s", dn)
	}
	return result.Entries[0], nil
}

// splitPatterns turns a comma-separated pattern list into trimmed,
// non-empty names.
func splitPatterns(patterns string) []string {
	var out []string
	for _, p := range strings.Split(patterns, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// matchGroupsByName filters groups whose name case-folds to one of the
// wanted names.
func matchGroupsByName(groups []api.DirectoryGroup, wanted []string) []api.DirectoryGroup {
	fold := cases.Fold()
	want := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		want[fold.String(name)] = true
	}

	var out []api.DirectoryGroup
	for _, g := range groups {
		if want[fold.String(g.Name)] {
			out = append(out, g)
		}
	}
	return out
}

// certificateToken derives the confirmation token for a server
// certificate: the hex SHA-256 fingerprint of its DER encoding.
func certificateToken(cert *x509.Certificate) string {
	sum := sha256.Sum256(cert.Raw)
	return hex.EncodeToString(sum[:])
}

// FetchCertificateToken connects without verification just far enough to
// read the server certificate and returns its confirmation token. Used
// when a bind fails with an untrusted certificate so the caller can be
// offered the fingerprint to accept.
func FetchCertificateToken(addr string) (string, error) {
	conn, err := tls.Dial("tcp", addr, &tls.Config{InsecureSkipVerify: true})
	if err != nil {
		return "", err
	}
	defer conn.Close()

	certs := conn.ConnectionState().PeerCertificates
	if len(certs) == 0 {
		return "", errors.New("server presented no certificate")
	}
	return certificateToken(certs[0]), nil
}

// ClassifyError maps a dial, bind or search failure onto the engine's
// user-facing connectivity codes.
func ClassifyError(cfg *settings.Settings, err error) api.ConnectResult {
	detail := err.Error()

	switch {
	case ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultInvalidCredentials):
		return api.ConnectResult{Status: api.ConnectWrongCredentials, Detail: detail}
	case ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultNoSuchObject),
		ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultInvalidDNSyntax):
		return api.ConnectResult{Status: api.ConnectBadSearchBase, Detail: detail}
	case ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultStrongAuthRequired),
		ldapv3.IsErrorWithCode(err, ldapv3.LDAPResultConfidentialityRequired):
		return api.ConnectResult{Status: api.ConnectStrongAuthRequired, Detail: detail}
	case ldapv3.IsErrorWithCode(err, ldapv3.ErrorFilterCompile):
		return api.ConnectResult{Status: api.ConnectInvalidFilter, Detail: detail}
	}

	var certErr x509.UnknownAuthorityError
	var hostErr x509.HostnameError
	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &certErr) || errors.As(err, &hostErr) || errors.As(err, &certInvalidErr) {
		result := api.ConnectResult{Status: api.ConnectCertificateRequested, Detail: detail}
		if host := serverHostPort(cfg.Server); host != "" {
			if token, tokenErr := FetchCertificateToken(host); tokenErr == nil {
				result.CertificateToken = token
			} else {
				logging.Warn("Directory", "Could not fetch certificate for %s: %v", host, tokenErr)
			}
		}
		return result
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return api.ConnectResult{Status: api.ConnectDomainNotFound, Detail: detail}
	}

	return api.ConnectResult{Status: api.ConnectError, Detail: detail}
}

// serverHostPort extracts host:port from an ldap(s) URI, defaulting the
// port by scheme.
func serverHostPort(server string) string {
	rest, ok := strings.CutPrefix(server, "ldaps://")
	port := "636"
	if !ok {
		if rest, ok = strings.CutPrefix(server, "ldap://"); !ok {
			return ""
		}
		port = "389"
	}
	rest = strings.TrimSuffix(rest, "/")
	if rest == "" {
		return ""
	}
	if strings.Contains(rest, ":") {
		return rest
	}
	return net.JoinHostPort(rest, port)
}

var _ api.DirectorySource = (*Client)(nil)
