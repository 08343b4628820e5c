package domain

import "time"

// Transaction records a single income or expense entry for a user.
// Amounts are stored with two decimal places.
type Transaction struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	CategoryID string    `json:"category_id"`
	Type       string    `json:"type"`
	Amount     float64   `json:"amount"`
	OccurredOn time.Time `json:"occurred_on"`
	Notes      string    `json:"notes,omitempty"`
	ReceiptKey string    `json:"-"`
	ReceiptURL string    `json:"receipt_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DashboardStats summarizes a user's totals over a date range.
type DashboardStats struct {
	TotalIncome  float64 `json:"total_income"`
	TotalExpense float64 `json:"total_expense"`
	Balance      float64 `json:"balance"`
}

// TransactionFilter narrows transaction listings. Zero values mean "no filter".
type TransactionFilter struct {
	Type       string
	CategoryID string
	StartDate  *time.Time
	EndDate    *time.Time
	Search     string
	SortBy     string // date | amount | created_at
	SortOrder  string // asc | desc
}
