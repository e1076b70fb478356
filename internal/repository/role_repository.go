package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/newsroom-auth/internal/model"
	"github.com/iliyamo/newsroom-auth/internal/rbac"
)

// RoleRepo reads and writes roles, permissions and their assignments.  The
// tables are the runtime source of truth; the YAML catalogue only seeds
// them through Sync.
type RoleRepo struct{ DB *sql.DB }

func NewRoleRepo(db *sql.DB) *RoleRepo { return &RoleRepo{DB: db} }

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Sync upserts every role and permission of the catalogue and replaces each
// catalogued role's permission set, in one transaction.
func (r *RoleRepo) Sync(ctx context.Context, c *rbac.Catalog) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	permIDs := make(map[rbac.Permission]uint64, len(c.Permissions))
	for _, p := range c.Permissions {
		id, err := ensurePermission(ctx, tx, p)
		if err != nil {
			return err
		}
		permIDs[p] = id
	}
	for _, def := range c.Roles {
		roleID, err := ensureRole(ctx, tx, def.Name, def.Level)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM role_permissions WHERE role_id=?", roleID); err != nil {
			return fmt.Errorf("clear role permissions: %w", err)
		}
		for _, p := range def.Permissions {
			if _, err := tx.ExecContext(ctx,
				"INSERT INTO role_permissions (role_id, permission_id) VALUES (?,?)",
				roleID, permIDs[p]); err != nil {
				return fmt.Errorf("insert role permission: %w", err)
			}
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit sync: %w", err)
	}
	return nil
}

func ensureRole(ctx context.Context, db execer, name string, level int) (uint64, error) {
	var id uint64
	err := db.QueryRowContext(ctx, "SELECT id FROM roles WHERE name=? LIMIT 1", name).Scan(&id)
	switch {
	case err == nil:
		if _, err := db.ExecContext(ctx, "UPDATE roles SET level=? WHERE id=?", level, id); err != nil {
			return 0, fmt.Errorf("update role: %w", err)
		}
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("lookup role: %w", err)
	}
	res, err := db.ExecContext(ctx, "INSERT INTO roles (name, level) VALUES (?,?)", name, level)
	if err != nil {
		return 0, fmt.Errorf("insert role: %w", err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert role id: %w", err)
	}
	return uint64(n), nil
}

func ensurePermission(ctx context.Context, db execer, p rbac.Permission) (uint64, error) {
	var id uint64
	err := db.QueryRowContext(ctx,
		"SELECT id FROM permissions WHERE resource=? AND action=? LIMIT 1", p.Resource, p.Action).Scan(&id)
	switch {
	case err == nil:
		return id, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("lookup permission: %w", err)
	}
	res, err := db.ExecContext(ctx, "INSERT INTO permissions (resource, action) VALUES (?,?)", p.Resource, p.Action)
	if err != nil {
		return 0, fmt.Errorf("insert permission: %w", err)
	}
	n, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert permission id: %w", err)
	}
	return uint64(n), nil
}

// GetByName fetches a role.
func (r *RoleRepo) GetByName(ctx context.Context, name string) (*model.Role, error) {
	return roleByName(ctx, r.DB, name)
}

func roleByName(ctx context.Context, q execer, name string) (*model.Role, error) {
	var role model.Role
	err := q.QueryRowContext(ctx, "SELECT id, name, level FROM roles WHERE name=? LIMIT 1", name).
		Scan(&role.ID, &role.Name, &role.Level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get role: %w", err)
	}
	return &role, nil
}

// List returns every role, highest level first.
func (r *RoleRepo) List(ctx context.Context) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx, "SELECT id, name, level FROM roles ORDER BY level DESC, name")
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Level); err != nil {
			return nil, fmt.Errorf("scan role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// AssignRole gives a user a role.  Assigning a role the user already holds
// is a no-op and keeps the original assignment time.
func (r *RoleRepo) AssignRole(ctx context.Context, userID uint64, roleName string, now time.Time) error {
	role, err := roleByName(ctx, r.DB, roleName)
	if err != nil {
		return err
	}
	return grantRole(ctx, r.DB, userID, role.ID, now)
}

// ReplaceRoles leaves roleName as the user's only role.  The revoke and the
// grant commit together, so a failure leaves the previous roles in place.
func (r *RoleRepo) ReplaceRoles(ctx context.Context, userID uint64, roleName string, now time.Time) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace roles: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	role, err := roleByName(ctx, tx, roleName)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM user_roles WHERE user_id=? AND role_id<>?", userID, role.ID); err != nil {
		return fmt.Errorf("revoke other roles: %w", err)
	}
	if err := grantRole(ctx, tx, userID, role.ID, now); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace roles: %w", err)
	}
	return nil
}

// grantRole inserts the assignment unless it already exists.
func grantRole(ctx context.Context, q execer, userID, roleID uint64, now time.Time) error {
	var exists int
	err := q.QueryRowContext(ctx,
		"SELECT 1 FROM user_roles WHERE user_id=? AND role_id=? LIMIT 1", userID, roleID).Scan(&exists)
	if err == nil {
		return nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("lookup user role: %w", err)
	}
	_, err = q.ExecContext(ctx,
		"INSERT INTO user_roles (user_id, role_id, assigned_at) VALUES (?,?,?)", userID, roleID, now.UTC())
	if err != nil {
		if isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("assign role: %w", err)
	}
	return nil
}

// RevokeRole removes a role from a user.
func (r *RoleRepo) RevokeRole(ctx context.Context, userID uint64, roleName string) error {
	role, err := r.GetByName(ctx, roleName)
	if err != nil {
		return err
	}
	res, err := r.DB.ExecContext(ctx, "DELETE FROM user_roles WHERE user_id=? AND role_id=?", userID, role.ID)
	return mustAffect(res, err, "revoke role")
}

// RolesForUser lists a user's roles in assignment order; the first one is
// the primary role.
func (r *RoleRepo) RolesForUser(ctx context.Context, userID uint64) ([]model.Role, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT r.id, r.name, r.level FROM user_roles ur
		 JOIN roles r ON r.id = ur.role_id
		 WHERE ur.user_id=?
		 ORDER BY ur.assigned_at, r.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("roles for user: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var roles []model.Role
	for rows.Next() {
		var role model.Role
		if err := rows.Scan(&role.ID, &role.Name, &role.Level); err != nil {
			return nil, fmt.Errorf("scan user role: %w", err)
		}
		roles = append(roles, role)
	}
	return roles, rows.Err()
}

// PermissionsForRole returns the flat permission set of a role.
func (r *RoleRepo) PermissionsForRole(ctx context.Context, roleID uint64) (rbac.Set, error) {
	rows, err := r.DB.QueryContext(ctx,
		`SELECT p.resource, p.action FROM role_permissions rp
		 JOIN permissions p ON p.id = rp.permission_id
		 WHERE rp.role_id=?`, roleID)
	if err != nil {
		return nil, fmt.Errorf("permissions for role: %w", err)
	}
	defer func() { _ = rows.Close() }()

	set := rbac.Set{}
	for rows.Next() {
		var p rbac.Permission
		if err := rows.Scan(&p.Resource, &p.Action); err != nil {
			return nil, fmt.Errorf("scan permission: %w", err)
		}
		set[p] = struct{}{}
	}
	return set, rows.Err()
}
