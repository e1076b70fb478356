package rbac

import (
	_ "embed"
	"fmt"
	"sort"

	"gopkg.in/yaml.v3"
)

//go:embed catalog.yaml
var defaultCatalog []byte

// RoleDef is one role of the catalogue.
type RoleDef struct {
	Name        string       `yaml:"name"`
	Level       int          `yaml:"level"`
	All         bool         `yaml:"all"`
	Permissions []Permission `yaml:"-"`
	Raw         []string     `yaml:"permissions"`
}

// Catalog is the declared universe of permissions and the roles built from
// them.  It is the seed for the roles / permissions / role_permissions
// tables; the tables stay the source of truth at runtime.
type Catalog struct {
	Permissions []Permission `yaml:"-"`
	RawPerms    []string     `yaml:"permissions"`
	Roles       []RoleDef    `yaml:"roles"`
}

// DefaultCatalog parses the embedded catalog.yaml.
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalog)
}

// ParseCatalog decodes and validates a YAML catalogue.  Role permissions
// must be declared in the top-level list; `all: true` grants every declared
// permission.
func ParseCatalog(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("rbac: decode catalog: %w", err)
	}
	known := make(Set, len(c.RawPerms))
	for _, raw := range c.RawPerms {
		p, err := ParsePermission(raw)
		if err != nil {
			return nil, err
		}
		if !known.Has(p) {
			known[p] = struct{}{}
			c.Permissions = append(c.Permissions, p)
		}
	}
	seen := map[string]bool{}
	for i := range c.Roles {
		r := &c.Roles[i]
		if r.Name == "" {
			return nil, fmt.Errorf("rbac: role #%d has no name", i)
		}
		if seen[r.Name] {
			return nil, fmt.Errorf("rbac: duplicate role %q", r.Name)
		}
		seen[r.Name] = true
		if r.All {
			r.Permissions = append([]Permission(nil), c.Permissions...)
			continue
		}
		for _, raw := range r.Raw {
			p, err := ParsePermission(raw)
			if err != nil {
				return nil, err
			}
			if !known.Has(p) {
				return nil, fmt.Errorf("rbac: role %q references undeclared permission %s", r.Name, p)
			}
			r.Permissions = append(r.Permissions, p)
		}
	}
	sort.SliceStable(c.Roles, func(i, j int) bool { return c.Roles[i].Level > c.Roles[j].Level })
	return &c, nil
}

// Role looks up a role definition by name.
func (c *Catalog) Role(name string) (RoleDef, bool) {
	for _, r := range c.Roles {
		if r.Name == name {
			return r, true
		}
	}
	return RoleDef{}, false
}
