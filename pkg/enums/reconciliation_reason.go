package enums

import "slices"

// ReconciliationReason explains why a seller credit was not applied.
type ReconciliationReason string

const (
	ReconciliationProductMissing ReconciliationReason = "product_missing"
	ReconciliationSellerMissing  ReconciliationReason = "seller_missing"
)

var validReconciliationReasons = []ReconciliationReason{
	ReconciliationProductMissing,
	ReconciliationSellerMissing,
}

func (v ReconciliationReason) IsValid() bool {
	return slices.Contains(validReconciliationReasons, v)
}

func ParseReconciliationReason(value string) (ReconciliationReason, error) {
	return parse("reconciliation reason", value, validReconciliationReasons)
}
