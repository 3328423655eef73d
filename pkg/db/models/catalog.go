package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
)

// Category is static reference data for products.
type Category struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Title     string    `gorm:"column:title;not null"`
	Image     string    `gorm:"column:image;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (c *Category) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

type Tag struct {
	ID   uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name string    `gorm:"column:name;not null;uniqueIndex:tags_name_key"`
	Slug string    `gorm:"column:slug;not null;uniqueIndex:tags_slug_key"`
}

func (t *Tag) BeforeCreate(*gorm.DB) error {
	ensureID(&t.ID)
	return nil
}

// Vendor is the public storefront of a selling user. One per user.
type Vendor struct {
	ID                 uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID             uuid.UUID `gorm:"column:user_id;type:uuid;not null;uniqueIndex:vendors_user_id_key"`
	Title              string    `gorm:"column:title;not null"`
	Description        string    `gorm:"column:description;type:text;not null"`
	Image              string    `gorm:"column:image;not null"`
	Address            string    `gorm:"column:address;not null"`
	Contact            string    `gorm:"column:contact;not null"`
	ChatResponseHours  int       `gorm:"column:chat_response_hours;not null"`
	ShippingOnTimeRate int       `gorm:"column:shipping_on_time_rate;not null"`
	AuthenticityRating int       `gorm:"column:authenticity_rating;not null"`
	ReturnDays         int       `gorm:"column:return_days;not null"`
	WarrantyDays       int       `gorm:"column:warranty_days;not null"`
	CreatedAt          time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *Vendor) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}

// Product is a vendor listing gated by moderation.
type Product struct {
	ID          uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OwnerID     *uuid.UUID          `gorm:"column:owner_id;type:uuid;index:products_owner_id_idx"`
	CategoryID  *uuid.UUID          `gorm:"column:category_id;type:uuid"`
	Category    *Category           `gorm:"foreignKey:CategoryID;constraint:OnDelete:SET NULL"`
	SKU         string              `gorm:"column:sku;not null;uniqueIndex:products_sku_key"`
	Title       string              `gorm:"column:title;not null"`
	Description string              `gorm:"column:description;type:text;not null"`
	Price       decimal.Decimal     `gorm:"column:price;type:numeric(12,2);not null;check:products_price_non_negative,price >= 0"`
	OldPrice    decimal.Decimal     `gorm:"column:old_price;type:numeric(12,2);not null"`
	Status      enums.ProductStatus `gorm:"column:status;type:text;not null;index:products_status_idx"`
	InStock     bool                `gorm:"column:in_stock;not null"`
	Featured    bool                `gorm:"column:featured;not null"`
	Tags        []Tag               `gorm:"many2many:product_tags;joinForeignKey:ProductID;joinReferences:TagID"`
	CreatedAt   time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// IsPurchasable reports whether the product may be added to a cart.
func (p *Product) IsPurchasable() bool {
	return p != nil && p.Status == enums.ProductStatusPublished && p.InStock
}

// ProductReview is a buyer rating of a published product.
type ProductReview struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;index:product_reviews_product_id_idx"`
	UserID    uuid.UUID `gorm:"column:user_id;type:uuid;not null"`
	Rating    int       `gorm:"column:rating;not null;check:product_reviews_rating_range,rating BETWEEN 1 AND 5"`
	Body      string    `gorm:"column:body;type:text;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

func (r *ProductReview) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
