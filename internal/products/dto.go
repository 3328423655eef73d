package product

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// ProductDTO represents the product payload returned to clients.
type ProductDTO struct {
	ID          uuid.UUID           `json:"id"`
	OwnerID     *uuid.UUID          `json:"owner_id,omitempty"`
	VendorID    *uuid.UUID          `json:"vendor_id,omitempty"`
	SKU         string              `json:"sku"`
	Title       string              `json:"title"`
	Description string              `json:"description"`
	Price       decimal.Decimal     `json:"price"`
	OldPrice    decimal.Decimal     `json:"old_price"`
	Status      enums.ProductStatus `json:"status"`
	InStock     bool                `json:"in_stock"`
	Featured    bool                `json:"featured"`
	Purchasable bool                `json:"purchasable"`
	Category    *CategoryDTO        `json:"category,omitempty"`
	Tags        []TagDTO            `json:"tags"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// CategoryDTO is the public shape of a category.
type CategoryDTO struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Image string    `json:"image"`
}

// TagDTO is the public shape of a tag.
type TagDTO struct {
	Name string `json:"name"`
	Slug string `json:"slug"`
}

// ReviewDTO is a single buyer review.
type ReviewDTO struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Rating    int       `json:"rating"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// ReviewList pages reviews alongside the product's overall rating.
type ReviewList struct {
	Reviews       []ReviewDTO     `json:"reviews"`
	AverageRating decimal.Decimal `json:"average_rating"`
	ReviewCount   int64           `json:"review_count"`
	NextCursor    string          `json:"next_cursor,omitempty"`
}

// ProductListResult is a cursor page of products.
type ProductListResult struct {
	Products   []ProductDTO `json:"products"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// NewProductDTO builds a DTO from the persisted model.
func NewProductDTO(product *models.Product) *ProductDTO {
	dto := &ProductDTO{
		ID:          product.ID,
		OwnerID:     product.OwnerID,
		SKU:         product.SKU,
		Title:       product.Title,
		Description: product.Description,
		Price:       product.Price,
		OldPrice:    product.OldPrice,
		Status:      product.Status,
		InStock:     product.InStock,
		Featured:    product.Featured,
		Purchasable: product.IsPurchasable(),
		Tags:        make([]TagDTO, 0, len(product.Tags)),
		CreatedAt:   product.CreatedAt,
		UpdatedAt:   product.UpdatedAt,
	}
	if product.Category != nil {
		dto.Category = NewCategoryDTO(product.Category)
	}
	for _, tag := range product.Tags {
		dto.Tags = append(dto.Tags, TagDTO{Name: tag.Name, Slug: tag.Slug})
	}
	return dto
}

func NewCategoryDTO(c *models.Category) *CategoryDTO {
	return &CategoryDTO{ID: c.ID, Title: c.Title, Image: c.Image}
}

func newReviewDTO(r models.ProductReview) ReviewDTO {
	return ReviewDTO{
		ID:        r.ID,
		UserID:    r.UserID,
		Rating:    r.Rating,
		Body:      r.Body,
		CreatedAt: r.CreatedAt,
	}
}
