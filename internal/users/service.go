package users

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service covers profile reads and administrator user management.
type Service interface {
	Get(ctx context.Context, id uuid.UUID) (*UserDTO, error)
	List(ctx context.Context, actor types.Actor, role *enums.Role, params pagination.Params) (*UserPage, error)
	Update(ctx context.Context, actor types.Actor, id uuid.UUID, input UpdateUserInput) (*UserDTO, error)
	Delete(ctx context.Context, actor types.Actor, id uuid.UUID) error
}

type service struct {
	repo *Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService wires the users service.
func NewService(repo *Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("users repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupErr(err)
	}
	return FromModel(user), nil
}

func (s *service) List(ctx context.Context, actor types.Actor, role *enums.Role, params pagination.Params) (*UserPage, error) {
	if !actor.Can(enums.PermissionManageUsers) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "user management requires admin role")
	}
	if role != nil && !role.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role filter")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, role, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list users")
	}
	page, next := pagination.Trim(rows, params.Limit, func(u models.User) pagination.Cursor {
		return pagination.Cursor{CreatedAt: u.CreatedAt, ID: u.ID}
	})
	out := make([]UserDTO, 0, len(page))
	for i := range page {
		out = append(out, *FromModel(&page[i]))
	}
	return &UserPage{Users: out, NextCursor: next}, nil
}

// Update changes a user's role or active flag. Administrators cannot demote
// or deactivate themselves.
func (s *service) Update(ctx context.Context, actor types.Actor, id uuid.UUID, input UpdateUserInput) (*UserDTO, error) {
	if !actor.Can(enums.PermissionManageUsers) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "user management requires admin role")
	}
	fields := map[string]any{}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid role")
		}
		if id == actor.UserID && *input.Role != enums.RoleAdmin {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "administrators cannot demote themselves")
		}
		fields["role"] = *input.Role
	}
	if input.IsActive != nil {
		if id == actor.UserID && !*input.IsActive {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "administrators cannot deactivate themselves")
		}
		fields["is_active"] = *input.IsActive
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "no fields to update")
	}

	rows, err := s.repo.UpdateFields(ctx, id, fields)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update user")
	}
	if rows == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"target_user_id": id.String(),
		"fields":         fields,
	})
	s.logg.Info(s.logg.WithUserID(logCtx, actor.UserID.String()), "user updated by admin")
	return s.Get(ctx, id)
}

func (s *service) Delete(ctx context.Context, actor types.Actor, id uuid.UUID) error {
	if !actor.Can(enums.PermissionManageUsers) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "user management requires admin role")
	}
	if id == actor.UserID {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "administrators cannot delete themselves")
	}
	var deleted int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).Delete(ctx, id)
		deleted = n
		return err
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete user")
	}
	if deleted == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	s.logg.Warn(s.logg.WithField(ctx, "target_user_id", id.String()), "user deleted by admin")
	return nil
}

func mapLookupErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "user not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user")
}
