package enums

import "slices"

// ProductStatus is the moderation state of a catalog listing.
type ProductStatus string

const (
	ProductStatusDraft     ProductStatus = "draft"
	ProductStatusInReview  ProductStatus = "in_review"
	ProductStatusPublished ProductStatus = "published"
	ProductStatusRejected  ProductStatus = "rejected"
	ProductStatusDisabled  ProductStatus = "disabled"
)

var validProductStatuses = []ProductStatus{
	ProductStatusDraft,
	ProductStatusInReview,
	ProductStatusPublished,
	ProductStatusRejected,
	ProductStatusDisabled,
}

func (v ProductStatus) String() string {
	return string(v)
}

func (v ProductStatus) IsValid() bool {
	return slices.Contains(validProductStatuses, v)
}

func ParseProductStatus(value string) (ProductStatus, error) {
	return parse("product status", value, validProductStatuses)
}

// IsVisible reports whether buyers may browse the product.
func (v ProductStatus) IsVisible() bool {
	return v == ProductStatusPublished
}
