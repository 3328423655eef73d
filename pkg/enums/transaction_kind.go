package enums

import "slices"

// TransactionKind distinguishes ledger credits from debits.
type TransactionKind string

const (
	TransactionKindCredit TransactionKind = "credit"
	TransactionKindDebit  TransactionKind = "debit"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindCredit,
	TransactionKindDebit,
}

func (v TransactionKind) String() string {
	return string(v)
}

func (v TransactionKind) IsValid() bool {
	return slices.Contains(validTransactionKinds, v)
}

func ParseTransactionKind(value string) (TransactionKind, error) {
	return parse("transaction kind", value, validTransactionKinds)
}
