package models

import "github.com/google/uuid"

// All lists every persisted model in dependency order.
func All() []any {
	return []any{
		&User{},
		&Account{},
		&LedgerTransaction{},
		&Category{},
		&Tag{},
		&Vendor{},
		&Product{},
		&ProductReview{},
		&Order{},
		&OrderItem{},
		&Address{},
		&ReconciliationIssue{},
		&WishlistItem{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}

func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
