// Package rbac holds the canonical authorization model: permissions are
// flat (resource, action) pairs attached to roles, resolved once per token
// mint and checked by a single Authorize function.
package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Permission is a (resource, action) pair such as articles:publish.
type Permission struct {
	Resource string
	Action   string
}

// P is shorthand for Permission{resource, action}.
func P(resource, action string) Permission {
	return Permission{Resource: resource, Action: action}
}

func (p Permission) String() string { return p.Resource + ":" + p.Action }

// ParsePermission parses the "resource:action" form.
func ParsePermission(s string) (Permission, error) {
	res, act, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok || res == "" || act == "" || strings.Contains(act, ":") {
		return Permission{}, fmt.Errorf("rbac: malformed permission %q", s)
	}
	return Permission{Resource: strings.ToLower(res), Action: strings.ToLower(act)}, nil
}

// Set is an unordered collection of permissions.
type Set map[Permission]struct{}

// NewSet builds a set from ps.
func NewSet(ps ...Permission) Set {
	s := make(Set, len(ps))
	for _, p := range ps {
		s[p] = struct{}{}
	}
	return s
}

// ParseSet builds a set from "resource:action" strings, skipping malformed
// entries.
func ParseSet(ss []string) Set {
	s := make(Set, len(ss))
	for _, raw := range ss {
		if p, err := ParsePermission(raw); err == nil {
			s[p] = struct{}{}
		}
	}
	return s
}

// Has reports membership.
func (s Set) Has(p Permission) bool {
	_, ok := s[p]
	return ok
}

// Strings returns the sorted "resource:action" form, as embedded in access
// tokens.
func (s Set) Strings() []string {
	out := make([]string, 0, len(s))
	for p := range s {
		out = append(out, p.String())
	}
	sort.Strings(out)
	return out
}

// HasPermission answers whether a principal holding set may perform action
// on resource.
func HasPermission(set Set, resource, action string) bool {
	return set.Has(Permission{Resource: resource, Action: action})
}
