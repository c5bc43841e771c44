package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/MrEthical07/shopauth/permission"
)

// ErrRoleNotFound is returned by AssignRole for an unknown role name.
var ErrRoleNotFound = errors.New("role not found")

func (s *Store) UserRoles(ctx context.Context, userID string) ([]permission.UserRole, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, role_id, assigned_at, active FROM user_roles WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []permission.UserRole
	for rows.Next() {
		var ur permission.UserRole
		if err := rows.Scan(&ur.UserID, &ur.RoleID, &ur.AssignedAt, &ur.Active); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, ur)
	}
	return out, rows.Err()
}

func (s *Store) RolesByID(ctx context.Context, ids []string) ([]permission.Role, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, active FROM roles WHERE id IN (`+placeholders(1, len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	out := make([]permission.Role, 0, len(ids))
	for rows.Next() {
		var r permission.Role
		if err := rows.Scan(&r.ID, &r.Name, &r.Active); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) RolePermissions(ctx context.Context, ids []string) ([]permission.RolePermission, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT role_id, permission_code FROM role_permissions WHERE role_id IN (`+placeholders(1, len(ids))+`)`,
		stringArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var out []permission.RolePermission
	for rows.Next() {
		var rp permission.RolePermission
		if err := rows.Scan(&rp.RoleID, &rp.Code); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, rp)
	}
	return out, rows.Err()
}

// AssignRole grants roleName to userID, reactivating an existing edge.
func (s *Store) AssignRole(ctx context.Context, userID, roleName string) error {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_roles (user_id, role_id, active)
		 SELECT $1, id, TRUE FROM roles WHERE name = $2
		 ON CONFLICT (user_id, role_id) DO UPDATE SET active = TRUE`,
		userID, roleName)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return ErrRoleNotFound
	}
	return nil
}

// SyncCatalog upserts every catalog code into the permissions table.
func (s *Store) SyncCatalog(ctx context.Context, catalog *permission.Catalog) error {
	return s.withTx(ctx, func(tx DBTX) error {
		for _, code := range catalog.Codes() {
			p, _ := catalog.Get(code)
			_, err := tx.ExecContext(ctx,
				`INSERT INTO permissions (code, module, description) VALUES ($1, $2, $3)
				 ON CONFLICT (code) DO UPDATE SET module = EXCLUDED.module, description = EXCLUDED.description`,
				p.Code, p.Module, p.Description)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
}

// EnsureRole creates roleName if missing and grants it codes. It returns
// the role ID.
func (s *Store) EnsureRole(ctx context.Context, roleName string, codes ...string) (string, error) {
	var id string
	err := s.withTx(ctx, func(tx DBTX) error {
		err := tx.QueryRowContext(ctx, `SELECT id FROM roles WHERE name = $1`, roleName).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			id = uuid.NewString()
			_, err = tx.ExecContext(ctx, `INSERT INTO roles (id, name, active) VALUES ($1, $2, TRUE)`, id, roleName)
		}
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		for _, code := range codes {
			_, err := tx.ExecContext(ctx,
				`INSERT INTO role_permissions (role_id, permission_code) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
				id, code)
			if err != nil {
				return fmt.Errorf("db error: %w", err)
			}
		}
		return nil
	})
	return id, err
}
