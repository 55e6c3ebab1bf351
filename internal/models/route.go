package models

import (
	"fmt"
	"net/url"
	"strings"
)

// Address is the opaque identifier of a routable service as known to the
// directory, e.g. "//discovery/search-api".
type Address string

func (a Address) String() string {
	return string(a)
}

// Path returns the path component of the address, used to derive the
// routing predicate. Falls back to "/" when the address has no path.
func (a Address) Path() string {
	u, err := url.Parse(string(a))
	if err != nil || u.Path == "" {
		return "/"
	}
	return u.Path
}

// BackendName derives a deterministic proxy-safe group name from the
// address: leading slashes stripped, remaining separators flattened.
func (a Address) BackendName() string {
	name := strings.Trim(string(a), "/")
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z',
			r >= 'A' && r <= 'Z',
			r >= '0' && r <= '9',
			r == '-', r == '.':
			return r
		}
		return '_'
	}, name)
	if name == "" {
		return "root"
	}
	return name
}

// RawRoute is a single backend announcement as delivered by the directory.
type RawRoute struct {
	Host  string `json:"host"`
	Port  uint16 `json:"port"`
	Kind  string `json:"kind"`
	Owner string `json:"owner"`
}

// TargetURL builds the backend target URL, scheme lowercased.
func (r RawRoute) TargetURL() string {
	return fmt.Sprintf("%s://%s:%d", strings.ToLower(r.Kind), r.Host, r.Port)
}

// RouteUpdate is one directory notification for a single address. A later
// update for the same address fully replaces the previous one.
type RouteUpdate struct {
	Address Address
	Routes  []RawRoute
	Policy  string
}

func (u RouteUpdate) String() string {
	return fmt.Sprintf("{address=%s, routes=%d, policy=%s}", u.Address, len(u.Routes), u.Policy)
}

// RouteEntry is the table value for one address: surviving HTTP target URLs
// plus the opaque balancing policy.
type RouteEntry struct {
	Targets []string
	Policy  string
}

// ServiceRoute is the renderer's view of one table entry.
type ServiceRoute struct {
	Address Address
	Targets []string
	Policy  string
}
