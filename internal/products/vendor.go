package product

import (
	"context"
	"errors"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/bazaar-backend/pkg/errors"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

const (
	defaultChatResponseHours = 24
	maxVendorRating          = 5
	maxVendorTextLen         = 100
	maxVendorDescriptionLen  = 2000
)

// VendorDTO is the public storefront profile.
type VendorDTO struct {
	ID                 uuid.UUID `json:"id"`
	Title              string    `json:"title"`
	Description        string    `json:"description"`
	Image              string    `json:"image"`
	Address            string    `json:"address"`
	Contact            string    `json:"contact"`
	ChatResponseHours  int       `json:"chat_response_hours"`
	ShippingOnTimeRate int       `json:"shipping_on_time_rate"`
	AuthenticityRating int       `json:"authenticity_rating"`
	ReturnDays         int       `json:"return_days"`
	WarrantyDays       int       `json:"warranty_days"`
	CreatedAt          time.Time `json:"created_at"`
}

// Storefront is a vendor profile with a page of its published listings.
type Storefront struct {
	Vendor   *VendorDTO         `json:"vendor"`
	Listings *ProductListResult `json:"listings"`
}

// UpdateVendorInput carries optional storefront changes.
type UpdateVendorInput struct {
	Title              *string
	Description        *string
	Image              *string
	Address            *string
	Contact            *string
	ChatResponseHours  *int
	ShippingOnTimeRate *int
	AuthenticityRating *int
	ReturnDays         *int
	WarrantyDays       *int
}

func NewVendorDTO(v *models.Vendor) *VendorDTO {
	if v == nil {
		return nil
	}
	return &VendorDTO{
		ID:                 v.ID,
		Title:              v.Title,
		Description:        v.Description,
		Image:              v.Image,
		Address:            v.Address,
		Contact:            v.Contact,
		ChatResponseHours:  v.ChatResponseHours,
		ShippingOnTimeRate: v.ShippingOnTimeRate,
		AuthenticityRating: v.AuthenticityRating,
		ReturnDays:         v.ReturnDays,
		WarrantyDays:       v.WarrantyDays,
		CreatedAt:          v.CreatedAt,
	}
}

// GetStorefront is public: only published listings are shown, whoever asks.
func (s *service) GetStorefront(ctx context.Context, vendorID uuid.UUID, params pagination.Params) (*Storefront, error) {
	vendor, err := s.repo.FindVendor(ctx, vendorID)
	if err != nil {
		return nil, mapVendorErr(err)
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	listings, err := s.listPage(ctx, productListQuery{
		Statuses: []enums.ProductStatus{enums.ProductStatusPublished},
		OwnerID:  &vendor.UserID,
		Limit:    pagination.LimitWithBuffer(params.Limit),
		Cursor:   cursor,
	}, params.Limit)
	if err != nil {
		return nil, err
	}
	return &Storefront{Vendor: NewVendorDTO(vendor), Listings: listings}, nil
}

// GetVendorProfile returns the caller's storefront, opening it on first use.
func (s *service) GetVendorProfile(ctx context.Context, actor types.Actor) (*VendorDTO, error) {
	if !actor.Can(enums.PermissionSellProducts) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors have a storefront")
	}
	vendor, err := s.repo.EnsureVendor(ctx, actor.UserID)
	if err != nil {
		return nil, mapVendorErr(err)
	}
	return NewVendorDTO(vendor), nil
}

func (s *service) UpdateVendorProfile(ctx context.Context, actor types.Actor, input UpdateVendorInput) (*VendorDTO, error) {
	if !actor.Can(enums.PermissionSellProducts) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only vendors have a storefront")
	}
	fields, err := input.fields()
	if err != nil {
		return nil, err
	}

	var updated *models.Vendor
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		vendor, err := txRepo.EnsureVendor(ctx, actor.UserID)
		if err != nil {
			return mapVendorErr(err)
		}
		if len(fields) > 0 {
			if err := txRepo.UpdateVendor(ctx, vendor.ID, fields); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update vendor")
			}
		}
		updated, err = txRepo.FindVendor(ctx, vendor.ID)
		return err
	})
	if err != nil {
		return nil, asTyped(err, "update vendor")
	}
	s.logg.Info(s.logg.WithField(ctx, "vendor_id", updated.ID.String()), "vendor profile updated")
	return NewVendorDTO(updated), nil
}

// fields validates the input and maps it to column updates.
func (in UpdateVendorInput) fields() (map[string]any, error) {
	fields := make(map[string]any)
	texts := []struct {
		column string
		value  *string
		max    int
	}{
		{"title", in.Title, maxVendorTextLen},
		{"description", in.Description, maxVendorDescriptionLen},
		{"image", in.Image, maxVendorDescriptionLen},
		{"address", in.Address, maxVendorTextLen},
		{"contact", in.Contact, maxVendorTextLen},
	}
	for _, t := range texts {
		if t.value == nil {
			continue
		}
		v := strings.TrimSpace(*t.value)
		if utf8.RuneCountInString(v) > t.max {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s is too long", t.column)
		}
		fields[t.column] = v
	}
	if title, ok := fields["title"]; ok && title == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "title is required")
	}

	numbers := []struct {
		column string
		value  *int
		max    int
	}{
		{"chat_response_hours", in.ChatResponseHours, 24 * 30},
		{"shipping_on_time_rate", in.ShippingOnTimeRate, 100},
		{"authenticity_rating", in.AuthenticityRating, maxVendorRating},
		{"return_days", in.ReturnDays, 365},
		{"warranty_days", in.WarrantyDays, 3650},
	}
	for _, n := range numbers {
		if n.value == nil {
			continue
		}
		if *n.value < 0 || *n.value > n.max {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be between 0 and %d", n.column, n.max)
		}
		fields[n.column] = *n.value
	}
	return fields, nil
}

func mapVendorErr(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, "vendor not found")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load vendor")
}
