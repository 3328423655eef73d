package users

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository exposes user-related persistence operations.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

// Create inserts a new user and returns the persisted model.
func (r *Repository) Create(ctx context.Context, dto CreateUserDTO) (*models.User, error) {
	user := dto.ToModel()
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, err
	}
	return user, nil
}

// FindByEmail retrieves the user matching the provided email.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("email = ?", email).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByUsername retrieves the user matching the provided username.
func (r *Repository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by their UUID.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateLastLogin refreshes the user's last_login_at timestamp.
func (r *Repository) UpdateLastLogin(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// UpdatePasswordHash replaces the stored hash, used when parameters are upgraded.
func (r *Repository) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	return r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		UpdateColumn("password_hash", hash).Error
}

// UpdateFields applies a partial update and returns the affected row count.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.User{}).
		Where("id = ?", id).
		Updates(fields)
	return res.RowsAffected, res.Error
}

// List returns users newest first, optionally filtered by role.
func (r *Repository) List(ctx context.Context, role *enums.Role, limit int, cursor *pagination.Cursor) ([]models.User, error) {
	query := r.db.WithContext(ctx).Model(&models.User{})
	if role != nil {
		query = query.Where("role = ?", *role)
	}
	var rows []models.User
	err := query.
		Scopes(pagination.After(cursor, "")).
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// CountByRole returns the number of users per role.
func (r *Repository) CountByRole(ctx context.Context) (map[enums.Role]int64, error) {
	var rows []struct {
		Role  enums.Role
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.User{}).
		Select("role, COUNT(*) AS count").
		Group("role").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[enums.Role]int64, len(rows))
	for _, row := range rows {
		out[row.Role] = row.Count
	}
	return out, nil
}

// Delete retires the user. Rows that only make sense for a live account are
// removed and listings lose their owner. The user row itself is anonymized
// and soft deleted so paid orders, the wallet and ledger history keep a
// valid reference. The email and username are freed for reuse.
func (r *Repository) Delete(ctx context.Context, id uuid.UUID) (int64, error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Product{}).Where("owner_id = ?", id).Update("owner_id", nil).Error; err != nil {
		return 0, err
	}
	for _, model := range []any{&models.WishlistItem{}, &models.Notification{}, &models.Address{}, &models.Vendor{}} {
		if err := db.Where("user_id = ?", id).Delete(model).Error; err != nil {
			return 0, err
		}
	}
	var cartIDs []uuid.UUID
	if err := db.Model(&models.Order{}).Where("buyer_id = ? AND paid_status = ?", id, false).Pluck("id", &cartIDs).Error; err != nil {
		return 0, err
	}
	if len(cartIDs) > 0 {
		if err := db.Where("order_id IN ?", cartIDs).Delete(&models.OrderItem{}).Error; err != nil {
			return 0, err
		}
		if err := db.Where("id IN ?", cartIDs).Delete(&models.Order{}).Error; err != nil {
			return 0, err
		}
	}
	tombstone := "deleted-" + id.String()
	res := db.Model(&models.User{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"email":         tombstone + "@users.invalid",
			"username":      tombstone,
			"password_hash": "",
			"first_name":    "",
			"last_name":     "",
			"is_active":     false,
			"deleted_at":    time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
