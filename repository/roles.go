package repository

import (
	"context"

	"github.com/goliatone/go-credentials"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

func (s *Store) FindRoleByName(ctx context.Context, name string) (*credentials.Role, error) {
	role := &credentials.Role{}
	err := s.db.NewSelect().Model(role).
		Where("?TableAlias.name = ?", name).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, credentials.ErrRoleNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *Store) FindRoleByID(ctx context.Context, id uuid.UUID) (*credentials.Role, error) {
	role := &credentials.Role{}
	err := s.db.NewSelect().Model(role).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNotFound(err) {
			return nil, credentials.ErrRoleNotFound
		}
		return nil, err
	}
	return role, nil
}

func (s *Store) CreateRole(ctx context.Context, role *credentials.Role) (*credentials.Role, error) {
	record := role.Clone()
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	if record.CreatedAt == nil {
		now := s.now().UTC()
		record.CreatedAt = &now
	}
	return s.roles.CreateTx(ctx, s.db, record)
}

func (s *Store) AddToRole(ctx context.Context, accountID uuid.UUID, roleName string) error {
	role, err := s.FindRoleByName(ctx, roleName)
	if err != nil {
		return err
	}

	if _, err := s.FindByID(ctx, accountID); err != nil {
		return err
	}

	_, err = s.db.NewInsert().Model(&membershipRecord{AccountID: accountID, RoleID: role.ID}).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	return err
}

func (s *Store) RemoveFromRoles(ctx context.Context, accountID uuid.UUID, roleNames ...string) error {
	if len(roleNames) == 0 {
		return nil
	}

	var ids []uuid.UUID
	err := s.db.NewSelect().Model((*credentials.Role)(nil)).
		Column("id").
		Where("?TableAlias.name IN (?)", bun.In(roleNames)).
		Scan(ctx, &ids)
	if err != nil && !isNotFound(err) {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	_, err = s.db.NewDelete().Model((*membershipRecord)(nil)).
		Where("account_id = ?", accountID).
		Where("role_id IN (?)", bun.In(ids)).
		Exec(ctx)
	return err
}

func (s *Store) RolesFor(ctx context.Context, accountID uuid.UUID) ([]string, error) {
	names := []string{}
	err := s.db.NewSelect().Model((*credentials.Role)(nil)).
		ColumnExpr("rol.name").
		Join("JOIN account_roles AS acr ON acr.role_id = rol.id").
		Where("acr.account_id = ?", accountID).
		Order("rol.name ASC").
		Scan(ctx, &names)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	return names, nil
}

func (s *Store) IsInRole(ctx context.Context, accountID uuid.UUID, roleName string) (bool, error) {
	return s.db.NewSelect().Model((*membershipRecord)(nil)).
		Join("JOIN roles AS rol ON rol.id = acr.role_id").
		Where("acr.account_id = ?", accountID).
		Where("rol.name = ?", roleName).
		Exists(ctx)
}
