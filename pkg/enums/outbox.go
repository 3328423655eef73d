package enums

import "slices"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregateProduct OutboxAggregateType = "product"
	AggregateUser    OutboxAggregateType = "user"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateProduct,
	AggregateUser,
}

func (a OutboxAggregateType) IsValid() bool {
	return slices.Contains(validAggregateTypes, a)
}

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType names a domain event recorded in the outbox.
type OutboxEventType string

const (
	EventOrderPaid            OutboxEventType = "order_paid"
	EventOrderShippingUpdated OutboxEventType = "order_shipping_updated"
	EventProductStatusChanged OutboxEventType = "product_status_changed"
	EventUserRegistered       OutboxEventType = "user_registered"
	EventSellerCreditSkipped  OutboxEventType = "seller_credit_skipped"
)

var validEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventOrderShippingUpdated,
	EventProductStatusChanged,
	EventUserRegistered,
	EventSellerCreditSkipped,
}

func (e OutboxEventType) IsValid() bool {
	return slices.Contains(validEventTypes, e)
}

func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validEventTypes)
}

// OutboxDLQErrorReason records why an outbox row stopped retrying.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)
