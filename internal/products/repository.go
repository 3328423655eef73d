package product

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
)

// Repository wires together all catalog persistence helpers.
type Repository struct {
	db *gorm.DB
}

// NewRepository builds a repository tied to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// WithTx returns a repository bound to the provided transaction.
func (r *Repository) WithTx(tx *gorm.DB) *Repository {
	if tx == nil {
		return r
	}
	return &Repository{db: tx}
}

func withAssociations(db *gorm.DB) *gorm.DB {
	return db.Preload("Category").Preload("Tags", func(db *gorm.DB) *gorm.DB {
		return db.Order("tags.slug ASC")
	})
}

// FindByID loads the product with its category and tags.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := withAssociations(r.db.WithContext(ctx)).First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// FindByIDs loads several products with their associations, keyed by id.
func (r *Repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]*models.Product, error) {
	out := make(map[uuid.UUID]*models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Product
	if err := withAssociations(r.db.WithContext(ctx)).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		out[rows[i].ID] = &rows[i]
	}
	return out, nil
}

// FindByIDForUpdate loads the bare product row and locks it for the rest of
// the transaction.
func (r *Repository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&product, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

// CreateProduct inserts a new product row.
func (r *Repository) CreateProduct(ctx context.Context, product *models.Product) (*models.Product, error) {
	if err := r.db.WithContext(ctx).Omit("Tags", "Category").Create(product).Error; err != nil {
		return nil, err
	}
	return product, nil
}

// UpdateFields applies a partial update to the product row.
func (r *Repository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// TransitionStatus moves the product from one of the given statuses to next
// and reports whether a row changed. The guard on the current status keeps
// concurrent moderators from both applying a transition.
func (r *Repository) TransitionStatus(ctx context.Context, id uuid.UUID, from []enums.ProductStatus, next enums.ProductStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND status IN ?", id, from).
		Update("status", next)
	return res.RowsAffected == 1, res.Error
}

// DeleteProduct removes a product. Order lines keep their snapshots with a
// null product reference; tags, reviews and wishlist entries go with it.
func (r *Repository) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.OrderItem{}).Where("product_id = ?", id).Update("product_id", nil).Error; err != nil {
		return err
	}
	if err := db.Exec("DELETE FROM product_tags WHERE product_id = ?", id).Error; err != nil {
		return err
	}
	for _, model := range []any{&models.ProductReview{}, &models.WishlistItem{}} {
		if err := db.Where("product_id = ?", id).Delete(model).Error; err != nil {
			return err
		}
	}
	return db.Where("id = ?", id).Delete(&models.Product{}).Error
}

// ReplaceTags swaps the product's tag set.
func (r *Repository) ReplaceTags(ctx context.Context, product *models.Product, tags []models.Tag) error {
	assoc := r.db.WithContext(ctx).Model(product).Association("Tags")
	if len(tags) == 0 {
		return assoc.Clear()
	}
	return assoc.Replace(tags)
}

// UpsertTags makes sure a tag exists for every slug and returns them all.
func (r *Repository) UpsertTags(ctx context.Context, tags []models.Tag) ([]models.Tag, error) {
	if len(tags) == 0 {
		return nil, nil
	}
	slugs := make([]string, 0, len(tags))
	for i := range tags {
		slugs = append(slugs, tags[i].Slug)
	}
	if err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&tags).Error; err != nil {
		return nil, err
	}
	var stored []models.Tag
	err := r.db.WithContext(ctx).Where("slug IN ?", slugs).Order("slug ASC").Find(&stored).Error
	return stored, err
}

// ListTags returns every tag ordered by slug.
func (r *Repository) ListTags(ctx context.Context) ([]models.Tag, error) {
	var rows []models.Tag
	err := r.db.WithContext(ctx).Order("slug ASC").Find(&rows).Error
	return rows, err
}

func (r *Repository) FindCategory(ctx context.Context, id uuid.UUID) (*models.Category, error) {
	var category models.Category
	if err := r.db.WithContext(ctx).First(&category, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &category, nil
}

func (r *Repository) CreateCategory(ctx context.Context, category *models.Category) error {
	return r.db.WithContext(ctx).Create(category).Error
}

func (r *Repository) ListCategories(ctx context.Context) ([]models.Category, error) {
	var rows []models.Category
	err := r.db.WithContext(ctx).Order("title ASC").Find(&rows).Error
	return rows, err
}

// ListProducts returns products newest first. Text search is a
// case-insensitive substring match over title and description.
func (r *Repository) ListProducts(ctx context.Context, query productListQuery) ([]models.Product, error) {
	qb := withAssociations(r.db.WithContext(ctx)).Model(&models.Product{})

	if len(query.Statuses) > 0 {
		qb = qb.Where("products.status IN ?", query.Statuses)
	}
	if query.OwnerID != nil {
		qb = qb.Where("products.owner_id = ?", *query.OwnerID)
	}
	if query.CategoryID != nil {
		qb = qb.Where("products.category_id = ?", *query.CategoryID)
	}
	if query.Featured != nil {
		qb = qb.Where("products.featured = ?", *query.Featured)
	}
	if query.TagSlug != "" {
		qb = qb.Where(
			"EXISTS (SELECT 1 FROM product_tags pt JOIN tags t ON t.id = pt.tag_id WHERE pt.product_id = products.id AND t.slug = ?)",
			query.TagSlug,
		)
	}
	if search := strings.TrimSpace(query.Search); search != "" {
		pattern := "%" + strings.ToLower(search) + "%"
		qb = qb.Where("(LOWER(products.title) LIKE ? OR LOWER(products.description) LIKE ?)", pattern, pattern)
	}
	if query.Cursor != nil {
		qb = qb.Where(
			"(products.created_at < ?) OR (products.created_at = ? AND products.id < ?)",
			query.Cursor.CreatedAt, query.Cursor.CreatedAt, query.Cursor.ID,
		)
	}

	var rows []models.Product
	err := qb.
		Order("products.created_at DESC").
		Order("products.id DESC").
		Limit(query.Limit).
		Find(&rows).Error
	return rows, err
}

func (r *Repository) CreateReview(ctx context.Context, review *models.ProductReview) error {
	return r.db.WithContext(ctx).Create(review).Error
}

// ListReviews returns reviews newest first.
func (r *Repository) ListReviews(ctx context.Context, productID uuid.UUID, limit int, cursor *pagination.Cursor) ([]models.ProductReview, error) {
	qb := r.db.WithContext(ctx).Where("product_id = ?", productID)
	if cursor != nil {
		qb = qb.Where("(created_at < ?) OR (created_at = ? AND id < ?)", cursor.CreatedAt, cursor.CreatedAt, cursor.ID)
	}
	var rows []models.ProductReview
	err := qb.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&rows).Error
	return rows, err
}

// ReviewStats returns the average rating rounded to one decimal and the count.
func (r *Repository) ReviewStats(ctx context.Context, productID uuid.UUID) (decimal.Decimal, int64, error) {
	var row struct {
		Total int64
		Count int64
	}
	if err := r.db.WithContext(ctx).
		Model(&models.ProductReview{}).
		Select("COALESCE(SUM(rating), 0) AS total, COUNT(*) AS count").
		Where("product_id = ?", productID).
		Scan(&row).Error; err != nil {
		return decimal.Zero, 0, err
	}
	if row.Count == 0 {
		return decimal.Zero, 0, nil
	}
	avg := decimal.NewFromInt(row.Total).DivRound(decimal.NewFromInt(row.Count), 1)
	return avg, row.Count, nil
}

// HasReviewed reports whether the user already reviewed the product.
func (r *Repository) HasReviewed(ctx context.Context, productID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.ProductReview{}).
		Where("product_id = ? AND user_id = ?", productID, userID).
		Count(&count).Error
	return count > 0, err
}

// EnsureVendor returns the user's storefront, opening one titled after the
// username when none exists yet.
func (r *Repository) EnsureVendor(ctx context.Context, userID uuid.UUID) (*models.Vendor, error) {
	db := r.db.WithContext(ctx)
	var usernames []string
	if err := db.Model(&models.User{}).Where("id = ?", userID).Limit(1).Pluck("username", &usernames).Error; err != nil {
		return nil, err
	}
	if len(usernames) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	vendor := &models.Vendor{
		UserID:             userID,
		Title:              usernames[0],
		ChatResponseHours:  defaultChatResponseHours,
		ShippingOnTimeRate: 100,
		AuthenticityRating: maxVendorRating,
	}
	if err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(vendor).Error; err != nil {
		return nil, err
	}
	return r.FindVendorByUser(ctx, userID)
}

func (r *Repository) FindVendor(ctx context.Context, id uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).First(&vendor, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *Repository) FindVendorByUser(ctx context.Context, userID uuid.UUID) (*models.Vendor, error) {
	var vendor models.Vendor
	if err := r.db.WithContext(ctx).First(&vendor, "user_id = ?", userID).Error; err != nil {
		return nil, err
	}
	return &vendor, nil
}

func (r *Repository) UpdateVendor(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).Model(&models.Vendor{}).Where("id = ?", id).Updates(fields).Error
}
