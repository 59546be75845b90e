package core

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Stage approval permission names, one per gated stage.
const (
	PermApproveIssued        = "orders.approve.issued"
	PermApproveManufacturing = "orders.approve.manufacturing"
	PermApproveOcean         = "orders.approve.ocean"
	PermApproveWarehouse     = "orders.approve.warehouse"
	PermEditOrder            = "orders.edit"
	PermCancelOrder          = "orders.cancel"
	PermReceiveInventory     = "inventory.receive"
)

var stagePermissions = map[Status]string{
	StatusIssued:        PermApproveIssued,
	StatusManufacturing: PermApproveManufacturing,
	StatusOcean:         PermApproveOcean,
	StatusWarehouse:     PermApproveWarehouse,
}

// PermissionService answers authorization questions for order operations.
// Super admins hold every permission implicitly.
type PermissionService interface {
	HasPermission(ctx context.Context, userID int, permission string) (bool, error)
	CanApprove(ctx context.Context, userID int, stage Status) (bool, error)
	IsSuperAdmin(ctx context.Context, userID int) (bool, error)
}

type permissionService struct {
	pool *pgxpool.Pool
}

// NewPermissionService constructs a PermissionService backed by PostgreSQL.
func NewPermissionService(pool *pgxpool.Pool) PermissionService {
	return &permissionService{pool: pool}
}

func (s *permissionService) IsSuperAdmin(ctx context.Context, userID int) (bool, error) {
	var super bool
	err := s.pool.QueryRow(ctx,
		"SELECT is_super_admin FROM users WHERE id = $1", userID,
	).Scan(&super)
	if err != nil {
		return false, fmt.Errorf("check super admin for user %d: %w", userID, err)
	}
	return super, nil
}

func (s *permissionService) HasPermission(ctx context.Context, userID int, permission string) (bool, error) {
	super, err := s.IsSuperAdmin(ctx, userID)
	if err != nil {
		return false, err
	}
	if super {
		return true, nil
	}
	var has bool
	err = s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM user_permissions
			WHERE user_id = $1 AND permission = $2
		)`,
		userID, permission,
	).Scan(&has)
	if err != nil {
		return false, fmt.Errorf("check permission %s for user %d: %w", permission, userID, err)
	}
	return has, nil
}

// CanApprove reports whether the user may approve a transition into the
// given stage. Stages with no named permission (CLOSED via cancel) are
// checked by their own operation instead.
func (s *permissionService) CanApprove(ctx context.Context, userID int, stage Status) (bool, error) {
	perm, ok := stagePermissions[stage]
	if !ok {
		return false, validationErrorf("stage %s has no approval permission", stage)
	}
	return s.HasPermission(ctx, userID, perm)
}
