package enums

import "fmt"

// TransactionKind classifies credit ledger entries.
type TransactionKind string

const (
	TransactionKindEntryCharge      TransactionKind = "entry_charge"
	TransactionKindCommissionCredit TransactionKind = "commission_credit"
	TransactionKindWithdrawal       TransactionKind = "withdrawal"
	TransactionKindMarketplaceDebit TransactionKind = "marketplace_debit"
	TransactionKindRefund           TransactionKind = "refund"
)

var validTransactionKinds = []TransactionKind{
	TransactionKindEntryCharge,
	TransactionKindCommissionCredit,
	TransactionKindWithdrawal,
	TransactionKindMarketplaceDebit,
	TransactionKindRefund,
}

// String implements fmt.Stringer.
func (k TransactionKind) String() string {
	return string(k)
}

// IsValid reports whether the value is known.
func (k TransactionKind) IsValid() bool {
	for _, candidate := range validTransactionKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// IsDebit reports whether entries of this kind reduce the user's balance.
func (k TransactionKind) IsDebit() bool {
	switch k {
	case TransactionKindEntryCharge, TransactionKindWithdrawal, TransactionKindMarketplaceDebit:
		return true
	}
	return false
}

// ParseTransactionKind converts raw input into a TransactionKind.
func ParseTransactionKind(value string) (TransactionKind, error) {
	for _, candidate := range validTransactionKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transaction kind %q", value)
}
