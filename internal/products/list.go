package product

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/bazaar-backend/pkg/enums"
	"github.com/angelmondragon/bazaar-backend/pkg/pagination"
	"github.com/angelmondragon/bazaar-backend/pkg/types"
)

// ProductListFilters describe the supported filter knobs for the browse endpoint.
type ProductListFilters struct {
	Status     *enums.ProductStatus `json:"status,omitempty"`
	Tag        string               `json:"tag,omitempty"`
	CategoryID *uuid.UUID           `json:"category,omitempty"`
	Featured   *bool                `json:"featured,omitempty"`
	Query      string               `json:"q,omitempty"`
}

// ListProductsInput captures the inputs needed to paginate and filter
// products. OwnListings restricts the page to the actor's own listings, in
// any status.
type ListProductsInput struct {
	Actor       *types.Actor
	OwnListings bool
	Filters     ProductListFilters
	Pagination  pagination.Params
}

type productListQuery struct {
	Statuses   []enums.ProductStatus
	OwnerID    *uuid.UUID
	TagSlug    string
	CategoryID *uuid.UUID
	Featured   *bool
	Search     string
	Limit      int
	Cursor     *pagination.Cursor
}
