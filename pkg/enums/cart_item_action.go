package enums

import "slices"

// CartItemAction is a buyer-initiated change to a cart line.
type CartItemAction string

const (
	CartItemActionIncrease CartItemAction = "increase"
	CartItemActionDecrease CartItemAction = "decrease"
	CartItemActionRemove   CartItemAction = "remove"
)

var validCartItemActions = []CartItemAction{
	CartItemActionIncrease,
	CartItemActionDecrease,
	CartItemActionRemove,
}

func (v CartItemAction) String() string {
	return string(v)
}

func (v CartItemAction) IsValid() bool {
	return slices.Contains(validCartItemActions, v)
}

func ParseCartItemAction(value string) (CartItemAction, error) {
	return parse("cart item action", value, validCartItemActions)
}
