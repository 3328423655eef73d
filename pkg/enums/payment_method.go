package enums

import "slices"

// PaymentMethod identifies how an order is paid.
type PaymentMethod string

const (
	PaymentMethodWallet PaymentMethod = "wallet"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodWallet,
}

func (v PaymentMethod) String() string {
	return string(v)
}

func (v PaymentMethod) IsValid() bool {
	return slices.Contains(validPaymentMethods, v)
}

func ParsePaymentMethod(value string) (PaymentMethod, error) {
	return parse("payment method", value, validPaymentMethods)
}
