package address

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

// Repository persists the single shipping address each user keeps.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func (r *Repository) FindByUser(ctx context.Context, userID uuid.UUID) (*models.Address, error) {
	var addr models.Address
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&addr).Error; err != nil {
		return nil, err
	}
	return &addr, nil
}

// Upsert overwrites the user's address in place, keyed by user_id.
func (r *Repository) Upsert(ctx context.Context, addr *models.Address) (*models.Address, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"full_name", "phone", "line1", "line2", "city", "state", "postal_code", "country", "updated_at",
			}),
		}).
		Create(addr).Error
	if err != nil {
		return nil, err
	}
	return r.FindByUser(ctx, addr.UserID)
}
