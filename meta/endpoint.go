// Package meta implements the shard-addressing and cluster-identity data
// model: parsed Endpoint URIs (spec.md §3, §4.B) and the process-wide Node
// registry. Grounded on the original implementation's endpoint.h for field
// layout and on the teacher's core/meta/bck.go for the "plain value type with
// inline delegations" style used throughout aistore's metadata packages.
package meta

import (
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/Kronuz/Xapiand-sub007/cmn/cos"
)

// Endpoint is a parsed, immutable URI reference to a shard:
// scheme://[user[:password]@]host[:port]/path[?search].
type Endpoint struct {
	Scheme   string
	User     string
	Password string
	Host     string
	Port     int
	Path     string
	Search   string // fragment following '?', opaque to this package
	NodeName string
}

const defaultNodeName = "."

// Parse decodes a URI into its Endpoint fields, normalizing the path
// (collapsing "//" and resolving ".." segments) and filling in a default
// node name when none is given, per spec.md §4.B.
func Parse(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, cos.NewErrInvalidArgument("endpoint: %v", err)
	}
	if u.Scheme == "" {
		return Endpoint{}, cos.NewErrInvalidArgument("endpoint %q: missing scheme", raw)
	}
	ep := Endpoint{
		Scheme: u.Scheme,
		Host:   u.Hostname(),
		Path:   normalizePath(u.Path),
		Search: u.RawQuery,
	}
	if u.User != nil {
		ep.User = u.User.Username()
		ep.Password, _ = u.User.Password()
	}
	if p := u.Port(); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil {
			return Endpoint{}, cos.NewErrInvalidArgument("endpoint %q: bad port %q", raw, p)
		}
		ep.Port = n
	}
	ep.NodeName = nodeNameFromFragment(u.Fragment)
	if ep.NodeName == "" {
		ep.NodeName = defaultNodeName
	}
	return ep, nil
}

func nodeNameFromFragment(frag string) string { return frag }

// normalizePath collapses repeated slashes and resolves ".." segments the
// way a filesystem path would, without touching a trailing slash's absence.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	cleaned := path.Clean(strings.ReplaceAll(p, "//", "/"))
	if cleaned == "." {
		return "/"
	}
	if !strings.HasPrefix(cleaned, "/") {
		cleaned = "/" + cleaned
	}
	return cleaned
}

// String renders the endpoint back to URI form.
func (e Endpoint) String() string {
	var b strings.Builder
	b.WriteString(e.Scheme)
	b.WriteString("://")
	if e.User != "" {
		b.WriteString(e.User)
		if e.Password != "" {
			b.WriteByte(':')
			b.WriteString(e.Password)
		}
		b.WriteByte('@')
	}
	b.WriteString(e.Host)
	if e.Port != 0 {
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(e.Port))
	}
	b.WriteString(e.Path)
	if e.Search != "" {
		b.WriteByte('?')
		b.WriteString(e.Search)
	}
	return b.String()
}

// Equal reports whether every field of e and other matches, per spec.md §3
// ("Two endpoints are equal iff every field matches").
func (e Endpoint) Equal(other Endpoint) bool { return e == other }

// Less implements the spec's ordering: lexicographic by path then host, used
// by DatabasePool's batch checkout to sort endpoints and avoid deadlock
// (spec.md §4.E).
func (e Endpoint) Less(other Endpoint) bool {
	if e.Path != other.Path {
		return e.Path < other.Path
	}
	return e.Host < other.Host
}

// SortEndpoints sorts a slice of Endpoint in the pool's canonical batch
// checkout order.
func SortEndpoints(eps []Endpoint) {
	sort.Slice(eps, func(i, j int) bool { return eps[i].Less(eps[j]) })
}

// Digest returns a stable 64-bit hash of the endpoint's URI form.
// pool.DatabasePool keys its LRU by String(), not by Digest.
func (e Endpoint) Digest() uint64 { return cos.HashString(e.String()) }

// IsLocal reports whether e's host/port match the designated local Node.
func (e Endpoint) IsLocal() bool {
	n := GetLocal()
	if n == nil {
		return false
	}
	return e.Host == n.Address && (e.Port == 0 || e.Port == n.RemotePort)
}
