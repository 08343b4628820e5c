package domain

import "time"

// Category type constants.
const (
	CategoryTypeIncome  = "income"
	CategoryTypeExpense = "expense"
)

// Category classifies transactions as a named income or expense bucket.
// Names are unique per type.
type Category struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsValidCategoryType checks whether the given type is income or expense.
func IsValidCategoryType(t string) bool {
	return t == CategoryTypeIncome || t == CategoryTypeExpense
}
