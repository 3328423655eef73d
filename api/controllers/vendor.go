package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/bazaar-backend/api/responses"
	"github.com/angelmondragon/bazaar-backend/api/validators"
	product "github.com/angelmondragon/bazaar-backend/internal/products"
	"github.com/angelmondragon/bazaar-backend/pkg/logger"
)

type createProductRequest struct {
	Title       string     `json:"title" validate:"required,max=200"`
	Description string     `json:"description" validate:"max=5000"`
	Price       string     `json:"price" validate:"required"`
	OldPrice    string     `json:"old_price,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Tags        []string   `json:"tags,omitempty" validate:"omitempty,max=20,dive,required,max=50"`
	InStock     *bool      `json:"in_stock,omitempty"`
	Featured    bool       `json:"featured,omitempty"`
}

func (r createProductRequest) toInput() (product.CreateProductInput, error) {
	price, err := parseMoney(r.Price, "price")
	if err != nil {
		return product.CreateProductInput{}, err
	}
	oldPrice := decimal.Zero
	if strings.TrimSpace(r.OldPrice) != "" {
		if oldPrice, err = parseMoney(r.OldPrice, "old_price"); err != nil {
			return product.CreateProductInput{}, err
		}
	}
	inStock := true
	if r.InStock != nil {
		inStock = *r.InStock
	}
	return product.CreateProductInput{
		Title:       r.Title,
		Description: r.Description,
		Price:       price,
		OldPrice:    oldPrice,
		CategoryID:  r.CategoryID,
		Tags:        r.Tags,
		InStock:     inStock,
		Featured:    r.Featured,
	}, nil
}

type updateProductRequest struct {
	Title       *string    `json:"title,omitempty" validate:"omitempty,max=200"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=5000"`
	Price       *string    `json:"price,omitempty"`
	OldPrice    *string    `json:"old_price,omitempty"`
	CategoryID  *uuid.UUID `json:"category_id,omitempty"`
	Tags        *[]string  `json:"tags,omitempty"`
	InStock     *bool      `json:"in_stock,omitempty"`
	Featured    *bool      `json:"featured,omitempty"`
}

func (r updateProductRequest) toInput() (product.UpdateProductInput, error) {
	input := product.UpdateProductInput{
		Title:       r.Title,
		Description: r.Description,
		CategoryID:  r.CategoryID,
		Tags:        r.Tags,
		InStock:     r.InStock,
		Featured:    r.Featured,
	}
	if r.Price != nil {
		price, err := parseMoney(*r.Price, "price")
		if err != nil {
			return input, err
		}
		input.Price = &price
	}
	if r.OldPrice != nil {
		oldPrice, err := parseMoney(*r.OldPrice, "old_price")
		if err != nil {
			return input, err
		}
		input.OldPrice = &oldPrice
	}
	return input, nil
}

// VendorCreateProduct submits a new listing; it starts in review.
func VendorCreateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload createProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.CreateProduct(r.Context(), actor, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, dto)
	}
}

// VendorUpdateProduct edits a listing the caller owns. Edits send it back to review.
func VendorUpdateProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var payload updateProductRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := payload.toInput()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		dto, err := svc.UpdateProduct(r.Context(), actor, productID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, dto)
	}
}

// DeleteProduct is shared by vendors and admins; ownership is enforced by the service.
func DeleteProduct(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.DeleteProduct(r.Context(), actor, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]bool{"deleted": true})
	}
}

func VendorListProducts(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params, err := validators.ParsePagination(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filters, err := parseProductFilters(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.ListProducts(r.Context(), product.ListProductsInput{
			Actor:       &actor,
			OwnListings: true,
			Filters:     filters,
			Pagination:  params,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type vendorProfileRequest struct {
	Title              *string `json:"title,omitempty"`
	Description        *string `json:"description,omitempty"`
	Image              *string `json:"image,omitempty" validate:"omitempty,url"`
	Address            *string `json:"address,omitempty"`
	Contact            *string `json:"contact,omitempty"`
	ChatResponseHours  *int    `json:"chat_response_hours,omitempty"`
	ShippingOnTimeRate *int    `json:"shipping_on_time_rate,omitempty"`
	AuthenticityRating *int    `json:"authenticity_rating,omitempty"`
	ReturnDays         *int    `json:"return_days,omitempty"`
	WarrantyDays       *int    `json:"warranty_days,omitempty"`
}

func VendorGetProfile(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.GetVendorProfile(r.Context(), actor)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}

// VendorUpdateProfile edits the caller's storefront. Range checks live in the service.
func VendorUpdateProfile(svc product.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, unavailable("product"))
			return
		}
		actor, err := requireActor(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload vendorProfileRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		profile, err := svc.UpdateVendorProfile(r.Context(), actor, product.UpdateVendorInput{
			Title:              payload.Title,
			Description:        payload.Description,
			Image:              payload.Image,
			Address:            payload.Address,
			Contact:            payload.Contact,
			ChatResponseHours:  payload.ChatResponseHours,
			ShippingOnTimeRate: payload.ShippingOnTimeRate,
			AuthenticityRating: payload.AuthenticityRating,
			ReturnDays:         payload.ReturnDays,
			WarrantyDays:       payload.WarrantyDays,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, profile)
	}
}
