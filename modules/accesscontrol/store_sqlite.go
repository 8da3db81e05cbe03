package accesscontrol

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stackward/platform"

	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

// Table DDL. Table names carry the module's storage namespace prefix.
const schema = `
CREATE TABLE IF NOT EXISTS access_overrides (
	user_id   TEXT NOT NULL,
	module_id TEXT NOT NULL,
	enabled   INTEGER NOT NULL,
	PRIMARY KEY (user_id, module_id)
);
CREATE TABLE IF NOT EXISTS access_role_permissions (
	module_id  TEXT NOT NULL,
	role       TEXT NOT NULL,
	can_access INTEGER NOT NULL,
	PRIMARY KEY (module_id, role)
);
`

// SQLiteStore implements Store over a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (creating if necessary) the database at path and
// ensures the schema exists. Use ":memory:" for an ephemeral store.
func OpenSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open access db %s: %w", path, err)
	}
	// modernc.org/sqlite serializes writes itself; a single connection
	// avoids SQLITE_BUSY under concurrent access.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create access schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Ping verifies the database answers, for health checks.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Override returns the user's override for the module, or nil when none
// exists.
func (s *SQLiteStore) Override(ctx context.Context, userID, moduleID string) (*platform.AccessOverride, error) {
	var enabled int
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled FROM access_overrides WHERE user_id = ? AND module_id = ?`,
		userID, moduleID).Scan(&enabled)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query override: %w", err)
	}
	return &platform.AccessOverride{UserID: userID, ModuleID: moduleID, Enabled: enabled != 0}, nil
}

// RolePermission returns the role's permission row for the module, or nil
// when none exists.
func (s *SQLiteStore) RolePermission(ctx context.Context, moduleID, role string) (*platform.RolePermission, error) {
	var canAccess int
	err := s.db.QueryRowContext(ctx,
		`SELECT can_access FROM access_role_permissions WHERE module_id = ? AND role = ?`,
		moduleID, role).Scan(&canAccess)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query role permission: %w", err)
	}
	return &platform.RolePermission{ModuleID: moduleID, Role: role, CanAccess: canAccess != 0}, nil
}

// SetOverride inserts or replaces an override row.
func (s *SQLiteStore) SetOverride(ctx context.Context, override platform.AccessOverride) error {
	enabled := 0
	if override.Enabled {
		enabled = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_overrides (user_id, module_id, enabled) VALUES (?, ?, ?)
		 ON CONFLICT (user_id, module_id) DO UPDATE SET enabled = excluded.enabled`,
		override.UserID, override.ModuleID, enabled)
	if err != nil {
		return fmt.Errorf("set override: %w", err)
	}
	return nil
}

// ClearOverride removes an override row; clearing an absent row is a
// no-op.
func (s *SQLiteStore) ClearOverride(ctx context.Context, userID, moduleID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM access_overrides WHERE user_id = ? AND module_id = ?`, userID, moduleID)
	if err != nil {
		return fmt.Errorf("clear override: %w", err)
	}
	return nil
}

// ListOverrides returns the user's overrides ordered by module ID.
func (s *SQLiteStore) ListOverrides(ctx context.Context, userID string) ([]platform.AccessOverride, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, module_id, enabled FROM access_overrides WHERE user_id = ? ORDER BY module_id`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("list overrides: %w", err)
	}
	defer rows.Close()

	var out []platform.AccessOverride
	for rows.Next() {
		var o platform.AccessOverride
		var enabled int
		if err := rows.Scan(&o.UserID, &o.ModuleID, &enabled); err != nil {
			return nil, fmt.Errorf("scan override: %w", err)
		}
		o.Enabled = enabled != 0
		out = append(out, o)
	}
	return out, rows.Err()
}

// SetRolePermission inserts or replaces a role permission row.
func (s *SQLiteStore) SetRolePermission(ctx context.Context, perm platform.RolePermission) error {
	canAccess := 0
	if perm.CanAccess {
		canAccess = 1
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO access_role_permissions (module_id, role, can_access) VALUES (?, ?, ?)
		 ON CONFLICT (module_id, role) DO UPDATE SET can_access = excluded.can_access`,
		perm.ModuleID, perm.Role, canAccess)
	if err != nil {
		return fmt.Errorf("set role permission: %w", err)
	}
	return nil
}

// ClearRolePermission removes a role permission row.
func (s *SQLiteStore) ClearRolePermission(ctx context.Context, moduleID, role string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM access_role_permissions WHERE module_id = ? AND role = ?`, moduleID, role)
	if err != nil {
		return fmt.Errorf("clear role permission: %w", err)
	}
	return nil
}

// ListRolePermissions returns the module's permission rows ordered by
// role.
func (s *SQLiteStore) ListRolePermissions(ctx context.Context, moduleID string) ([]platform.RolePermission, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT module_id, role, can_access FROM access_role_permissions WHERE module_id = ? ORDER BY role`,
		moduleID)
	if err != nil {
		return nil, fmt.Errorf("list role permissions: %w", err)
	}
	defer rows.Close()

	var out []platform.RolePermission
	for rows.Next() {
		var p platform.RolePermission
		var canAccess int
		if err := rows.Scan(&p.ModuleID, &p.Role, &canAccess); err != nil {
			return nil, fmt.Errorf("scan role permission: %w", err)
		}
		p.CanAccess = canAccess != 0
		out = append(out, p)
	}
	return out, rows.Err()
}
