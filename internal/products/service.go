package product

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
	"github.com/angelmondragon/bazaar-backend/pkg/metrics"
	"github.com/angelmondragon/bazaar-backend/pkg/outbox"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
	"github.com/angelmondragon/bazaar-backend/pkg/visibility"
)

const (
	skuPrefix      = "sku"
	skuDigits      = 6
	skuAttempts    = 3
	maxTagsPerItem = 20
)

// Service exposes catalog management, moderation and browsing.
type Service interface {
	CreateProduct(ctx context.Context, actor types.Actor, input CreateProductInput) (*ProductDTO, error)
	UpdateProduct(ctx context.Context, actor types.Actor, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error)
	DeleteProduct(ctx context.Context, actor types.Actor, productID uuid.UUID) error
	GetProduct(ctx context.Context, actor *types.Actor, productID uuid.UUID) (*ProductDTO, error)
	ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error)

	Approve(ctx context.Context, actor types.Actor, productID uuid.UUID) (*ProductDTO, error)
	Deny(ctx context.Context, actor types.Actor, productID uuid.UUID, reason string) (*ProductDTO, error)
	Disable(ctx context.Context, actor types.Actor, productID uuid.UUID, reason string) (*ProductDTO, error)

	ListCategories(ctx context.Context) ([]CategoryDTO, error)
	CreateCategory(ctx context.Context, actor types.Actor, input CreateCategoryInput) (*CategoryDTO, error)
	ListTags(ctx context.Context) ([]TagDTO, error)

	AddReview(ctx context.Context, actor types.Actor, productID uuid.UUID, input ReviewInput) (*ReviewDTO, error)
	ListReviews(ctx context.Context, actor *types.Actor, productID uuid.UUID, params pagination.Params) (*ReviewList, error)

	GetStorefront(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*Storefront, error)
	GetVendorProfile(ctx context.Context, actor types.Actor) (*VendorDTO, error)
	UpdateVendorProfile(ctx context.Context, actor types.Actor, input UpdateVendorInput) (*VendorDTO, error)
}

// CreateProductInput holds the validated payload to create a product.
type CreateProductInput struct {
	Title       string
	Description string
	Price       decimal.Decimal
	OldPrice    decimal.Decimal
	CategoryID  *uuid.UUID
	Tags        []string
	InStock     bool
	Featured    bool
}

// UpdateProductInput holds optional mutation values for a product. Status is
// deliberately absent; it only changes through moderation.
type UpdateProductInput struct {
	Title       *string
	Description *string
	Price       *decimal.Decimal
	OldPrice    *decimal.Decimal
	CategoryID  *uuid.UUID
	Tags        *[]string
	InStock     *bool
	Featured    *bool
}

type CreateCategoryInput struct {
	Title string
	Image string
}

type ReviewInput struct {
	Rating int
	Body   string
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// ServiceParams wires the catalog service.
type ServiceParams struct {
	Repo    *Repository
	Tx      txRunner
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.MarketplaceMetrics
}

type service struct {
	repo    *Repository
	tx      txRunner
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.MarketplaceMetrics
}

// NewService constructs a product service instance.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("product repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// CreateProduct stores a new listing in review. Only administrators may
// feature a product.
func (s *service) CreateProduct(ctx context.Context, actor types.Actor, input CreateProductInput) (*ProductDTO, error) {
	if !actor.Can(enums.PermissionSellProducts) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors can list products")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	if err := validatePrice("price", input.Price); err != nil {
		return nil, err
	}
	if err := validatePrice("old_price", input.OldPrice); err != nil {
		return nil, err
	}
	if input.Featured && !actor.Can(enums.PermissionManageCatalog) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can feature products")
	}
	tags, err := normalizeTags(input.Tags)
	if err != nil {
		return nil, err
	}

	ownerID := actor.UserID
	var createdID uuid.UUID
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := ensureCategory(ctx, txRepo, input.CategoryID); err != nil {
			return err
		}
		if _, err := txRepo.EnsureVendor(ctx, ownerID); err != nil {
			return mapVendorErr(err)
		}

		var created *models.Product
		for attempt := 0; attempt < skuAttempts; attempt++ {
			sku, err := generateSKU()
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate sku")
			}
			candidate := &models.Product{
				OwnerID:     &ownerID,
				CategoryID:  input.CategoryID,
				SKU:         sku,
				Title:       title,
				Description: strings.TrimSpace(input.Description),
				Price:       input.Price.Round(2),
				OldPrice:    input.OldPrice.Round(2),
				Status:      enums.ProductStatusInReview,
				InStock:     input.InStock,
				Featured:    input.Featured,
			}
			// Savepoint so a SKU collision does not poison the surrounding
			// Postgres transaction.
			err = tx.Transaction(func(inner *gorm.DB) error {
				_, err := s.repo.WithTx(inner).CreateProduct(ctx, candidate)
				return err
			})
			if err == nil {
				created = candidate
				break
			}
			if !db.IsUniqueViolation(err, "products_sku_key") {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: insert product")
			}
		}
		if created == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "could not allocate a unique sku")
		}
		createdID = created.ID

		return s.replaceTags(ctx, txRepo, created, tags)
	})
	if err != nil {
		return nil, asTyped(err, "create product")
	}

	s.logg.Info(s.productCtx(ctx, actor, createdID), "product submitted for review")
	return s.load(ctx, createdID)
}

// UpdateProduct edits a listing on behalf of its owner or an administrator.
func (s *service) UpdateProduct(ctx context.Context, actor types.Actor, productID uuid.UUID, input UpdateProductInput) (*ProductDTO, error) {
	fields := map[string]any{}
	if input.Title != nil {
		title := strings.TrimSpace(*input.Title)
		if title == "" {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "title cannot be empty")
		}
		fields["title"] = title
	}
	if input.Description != nil {
		fields["description"] = strings.TrimSpace(*input.Description)
	}
	if input.Price != nil {
		if err := validatePrice("price", *input.Price); err != nil {
			return nil, err
		}
		fields["price"] = input.Price.Round(2)
	}
	if input.OldPrice != nil {
		if err := validatePrice("old_price", *input.OldPrice); err != nil {
			return nil, err
		}
		fields["old_price"] = input.OldPrice.Round(2)
	}
	if input.CategoryID != nil {
		fields["category_id"] = *input.CategoryID
	}
	if input.InStock != nil {
		fields["in_stock"] = *input.InStock
	}
	if input.Featured != nil {
		if !actor.Can(enums.PermissionManageCatalog) {
			return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only administrators can feature products")
		}
		fields["featured"] = *input.Featured
	}
	var tags []models.Tag
	if input.Tags != nil {
		normalized, err := normalizeTags(*input.Tags)
		if err != nil {
			return nil, err
		}
		tags = normalized
	}

	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := txRepo.FindByIDForUpdate(ctx, productID)
		if err != nil {
			return mapProductErr(err)
		}
		if !actor.Owns(product.OwnerID) && !actor.Can(enums.PermissionManageCatalog) {
			return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another vendor")
		}
		if err := ensureCategory(ctx, txRepo, input.CategoryID); err != nil {
			return err
		}
		if len(fields) > 0 {
			if err := txRepo.UpdateFields(ctx, productID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: update product")
			}
		}
		if input.Tags != nil {
			return s.replaceTags(ctx, txRepo, product, tags)
		}
		return nil
	})
	if err != nil {
		return nil, asTyped(err, "update product")
	}
	return s.load(ctx, productID)
}

// DeleteProduct removes a listing. Owners may only delete rejected listings;
// administrators may delete any.
func (s *service) DeleteProduct(ctx context.Context, actor types.Actor, productID uuid.UUID) error {
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		product, err := txRepo.FindByIDForUpdate(ctx, productID)
		if err != nil {
			return mapProductErr(err)
		}
		if !actor.Can(enums.PermissionManageCatalog) {
			if !actor.Owns(product.OwnerID) {
				return pkgerrors.New(pkgerrors.CodeForbidden, "product belongs to another vendor")
			}
			if product.Status != enums.ProductStatusRejected {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "only rejected products can be deleted by their owner")
			}
		}
		if err := txRepo.DeleteProduct(ctx, productID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: delete product")
		}
		return nil
	})
	if err != nil {
		return asTyped(err, "delete product")
	}
	s.logg.Info(s.productCtx(ctx, actor, productID), "product deleted")
	return nil
}

// GetProduct returns a product the caller is allowed to see. Unpublished
// listings are reported missing to everyone but their owner and moderators.
func (s *service) GetProduct(ctx context.Context, actor *types.Actor, productID uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapProductErr(err)
	}
	if err := visibility.EnsureProductVisible(product, actor); err != nil {
		return nil, err
	}
	dto := NewProductDTO(product)
	if product.OwnerID != nil {
		vendor, err := s.repo.FindVendorByUser(ctx, *product.OwnerID)
		switch {
		case err == nil:
			dto.VendorID = &vendor.ID
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return nil, mapVendorErr(err)
		}
	}
	return dto, nil
}

func (s *service) ListProducts(ctx context.Context, input ListProductsInput) (*ProductListResult, error) {
	if input.OwnListings && (input.Actor == nil || !input.Actor.Can(enums.PermissionSellProducts)) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors have listings")
	}
	statuses, err := visibility.ListingStatuses(input.Actor, input.Filters.Status, input.OwnListings)
	if err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(input.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	query := productListQuery{
		Statuses:   statuses,
		TagSlug:    slugify(input.Filters.Tag),
		CategoryID: input.Filters.CategoryID,
		Featured:   input.Filters.Featured,
		Search:     input.Filters.Query,
		Limit:      pagination.LimitWithBuffer(input.Pagination.Limit),
		Cursor:     cursor,
	}
	if input.OwnListings {
		ownerID := input.Actor.UserID
		query.OwnerID = &ownerID
	}

	return s.listPage(ctx, query, input.Pagination.Limit)
}

func (s *service) listPage(ctx context.Context, query productListQuery, limit int) (*ProductListResult, error) {
	rows, err := s.repo.ListProducts(ctx, query)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list products")
	}
	page, next := pagination.Trim(rows, limit, func(p models.Product) pagination.Cursor {
		return pagination.Cursor{CreatedAt: p.CreatedAt, ID: p.ID}
	})
	out := make([]ProductDTO, 0, len(page))
	for i := range page {
		out = append(out, *NewProductDTO(&page[i]))
	}
	return &ProductListResult{Products: out, NextCursor: next}, nil
}

func (s *service) ListCategories(ctx context.Context) ([]CategoryDTO, error) {
	rows, err := s.repo.ListCategories(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list categories")
	}
	out := make([]CategoryDTO, 0, len(rows))
	for i := range rows {
		out = append(out, *NewCategoryDTO(&rows[i]))
	}
	return out, nil
}

func (s *service) CreateCategory(ctx context.Context, actor types.Actor, input CreateCategoryInput) (*CategoryDTO, error) {
	if !actor.Can(enums.PermissionManageCatalog) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "catalog management requires admin role")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}
	category := &models.Category{Title: title, Image: strings.TrimSpace(input.Image)}
	if err := s.repo.CreateCategory(ctx, category); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create category")
	}
	return NewCategoryDTO(category), nil
}

func (s *service) ListTags(ctx context.Context) ([]TagDTO, error) {
	rows, err := s.repo.ListTags(ctx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list tags")
	}
	out := make([]TagDTO, 0, len(rows))
	for _, tag := range rows {
		out = append(out, TagDTO{Name: tag.Name, Slug: tag.Slug})
	}
	return out, nil
}

// AddReview records a rating on a published product. One review per user.
func (s *service) AddReview(ctx context.Context, actor types.Actor, productID uuid.UUID, input ReviewInput) (*ReviewDTO, error) {
	if actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "authentication required")
	}
	if input.Rating < 1 || input.Rating > 5 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "rating must be between 1 and 5")
	}
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapProductErr(err)
	}
	if product.Status != enums.ProductStatusPublished {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	reviewed, err := s.repo.HasReviewed(ctx, productID, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check review")
	}
	if reviewed {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "product already reviewed")
	}
	review := &models.ProductReview{
		ProductID: productID,
		UserID:    actor.UserID,
		Rating:    input.Rating,
		Body:      strings.TrimSpace(input.Body),
	}
	if err := s.repo.CreateReview(ctx, review); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create review")
	}
	dto := newReviewDTO(*review)
	return &dto, nil
}

func (s *service) ListReviews(ctx context.Context, actor *types.Actor, productID uuid.UUID, params pagination.Params) (*ReviewList, error) {
	product, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		return nil, mapProductErr(err)
	}
	if err := visibility.EnsureProductVisible(product, actor); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.ListReviews(ctx, productID, pagination.LimitWithBuffer(params.Limit), cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list reviews")
	}
	avg, count, err := s.repo.ReviewStats(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "review stats")
	}
	page, next := pagination.Trim(rows, params.Limit, func(r models.ProductReview) pagination.Cursor {
		return pagination.Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
	})
	out := make([]ReviewDTO, 0, len(page))
	for _, r := range page {
		out = append(out, newReviewDTO(r))
	}
	return &ReviewList{Reviews: out, AverageRating: avg, ReviewCount: count, NextCursor: next}, nil
}

func (s *service) replaceTags(ctx context.Context, repo *Repository, product *models.Product, tags []models.Tag) error {
	stored, err := repo.UpsertTags(ctx, tags)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: upsert tags")
	}
	if err := repo.ReplaceTags(ctx, product, stored); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "db: replace tags")
	}
	return nil
}

func (s *service) load(ctx context.Context, id uuid.UUID) (*ProductDTO, error) {
	product, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return NewProductDTO(product), nil
}

func (s *service) productCtx(ctx context.Context, actor types.Actor, productID uuid.UUID) context.Context {
	ctx = s.logg.WithUserID(ctx, actor.UserID.String())
	ctx = s.logg.WithActorRole(ctx, string(actor.Role))
	return s.logg.WithField(ctx, "product_id", productID.String())
}

func ensureCategory(ctx context.Context, repo *Repository, id *uuid.UUID) error {
	if id == nil {
		return nil
	}
	if _, err := repo.FindCategory(ctx, *id); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeValidation, "category does not exist")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load category")
	}
	return nil
}

func validatePrice(field string, value decimal.Decimal) error {
	if value.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" must not be negative")
	}
	if !value.Equal(value.Round(2)) {
		return pkgerrors.New(pkgerrors.CodeValidation, field+" supports at most two decimal places")
	}
	return nil
}

// normalizeTags trims, dedupes by slug and drops empty names.
func normalizeTags(names []string) ([]models.Tag, error) {
	if len(names) > maxTagsPerItem {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d tags are allowed", maxTagsPerItem))
	}
	seen := make(map[string]struct{}, len(names))
	tags := make([]models.Tag, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		slug := slugify(name)
		if slug == "" {
			continue
		}
		if _, ok := seen[slug]; ok {
			continue
		}
		seen[slug] = struct{}{}
		tags = append(tags, models.Tag{Name: name, Slug: slug})
	}
	return tags, nil
}

func slugify(value string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(strings.TrimSpace(value)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

func generateSKU() (string, error) {
	const alphabet = "123456789"
	buf := make([]byte, skuDigits)
	for i := range buf {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(alphabet))))
		if err != nil {
			return "", err
		}
		buf[i] = alphabet[n.Int64()]
	}
	return skuPrefix + string(buf), nil
}

func mapProductErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
}

func asTyped(err error, msg string) error {
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, msg)
}
