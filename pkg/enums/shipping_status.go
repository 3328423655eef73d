package enums

import "slices"

// ShippingStatus tracks fulfillment of a paid order.
type ShippingStatus string

const (
	ShippingStatusProcessing ShippingStatus = "processing"
	ShippingStatusShipped    ShippingStatus = "shipped"
	ShippingStatusDelivered  ShippingStatus = "delivered"
)

var validShippingStatuses = []ShippingStatus{
	ShippingStatusProcessing,
	ShippingStatusShipped,
	ShippingStatusDelivered,
}

func (v ShippingStatus) String() string {
	return string(v)
}

func (v ShippingStatus) IsValid() bool {
	return slices.Contains(validShippingStatuses, v)
}

func ParseShippingStatus(value string) (ShippingStatus, error) {
	return parse("shipping status", value, validShippingStatuses)
}

// CanAdvanceTo reports whether next is a forward move from v.
func (v ShippingStatus) CanAdvanceTo(next ShippingStatus) bool {
	return shippingRank(next) > shippingRank(v)
}

// shippingRank is the position in the fulfillment sequence, -1 if unknown.
func shippingRank(status ShippingStatus) int {
	return slices.Index(validShippingStatuses, status)
}
