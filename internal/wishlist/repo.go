package wishlist

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository encapsulates wishlist persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository constructs a wishlist repository bound to the provided gorm DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// AddItem inserts a wishlist entry. created is false when the pair was
// already saved.
func (r *Repository) AddItem(ctx context.Context, userID, productID uuid.UUID) (created bool, err error) {
	if userID == uuid.Nil || productID == uuid.Nil {
		return false, gorm.ErrInvalidValue
	}
	item := models.WishlistItem{
		ID:        uuid.New(),
		UserID:    userID,
		ProductID: productID,
		CreatedAt: time.Now().UTC(),
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "product_id"}},
			DoNothing: true,
		}).
		Create(&item)
	return res.RowsAffected > 0, res.Error
}

// RemoveItem deletes the user-product entry if it exists.
func (r *Repository) RemoveItem(ctx context.Context, userID, productID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ? AND product_id = ?", userID, productID).
		Delete(&models.WishlistItem{}).
		Error
}

// ListItems returns wishlist rows whose product is still published, newest
// first.
func (r *Repository) ListItems(ctx context.Context, userID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.WishlistItem, error) {
	query := r.db.WithContext(ctx).
		Model(&models.WishlistItem{}).
		Joins("JOIN products p ON p.id = wishlist_items.product_id").
		Where("wishlist_items.user_id = ? AND p.status = ?", userID, enums.ProductStatusPublished)

	var rows []models.WishlistItem
	if err := query.
		Scopes(pagination.After(cursor, "wishlist_items")).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// ProductIDs lists up to limit saved product IDs that are still published,
// newest first.
func (r *Repository) ProductIDs(ctx context.Context, userID uuid.UUID, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).
		Model(&models.WishlistItem{}).
		Joins("JOIN products p ON p.id = wishlist_items.product_id").
		Where("wishlist_items.user_id = ? AND p.status = ?", userID, enums.ProductStatusPublished).
		Order("wishlist_items.created_at DESC").
		Order("wishlist_items.id DESC").
		Limit(limit).
		Pluck("wishlist_items.product_id", &ids).Error
	return ids, err
}
