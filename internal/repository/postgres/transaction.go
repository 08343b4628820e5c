package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/avelar/fintrack/internal/domain"
	"github.com/avelar/fintrack/pkg/database"
	apperrors "github.com/avelar/fintrack/pkg/errors"
	"github.com/avelar/fintrack/pkg/pagination"
)

const transactionColumns = `id, user_id, category_id, type, amount, occurred_on, notes, receipt_key, receipt_url, created_at, updated_at`

// sortColumns whitelists the sortable fields to their SQL columns.
var sortColumns = map[string]string{
	"date":       "occurred_on",
	"amount":     "amount",
	"created_at": "created_at",
}

// TransactionRepository implements repository.TransactionRepository using PostgreSQL.
type TransactionRepository struct {
	db DB
}

// NewTransactionRepository creates a new PostgreSQL-backed transaction repository.
func NewTransactionRepository(db DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create inserts a new transaction into the database.
func (r *TransactionRepository) Create(ctx context.Context, t *domain.Transaction) error {
	query := `
		INSERT INTO transactions (id, user_id, category_id, type, amount, occurred_on, notes, receipt_key, receipt_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.CategoryID,
		t.Type,
		t.Amount,
		t.OccurredOn,
		t.Notes,
		t.ReceiptKey,
		t.ReceiptURL,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert transaction: %w", err)
	}

	return nil
}

// GetByID retrieves a transaction owned by the given user. Ownership lives in
// the WHERE clause so one user can never read another's rows.
func (r *TransactionRepository) GetByID(ctx context.Context, userID, id string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND user_id = $2`

	var t domain.Transaction
	err := scanTransactionRow(r.db.QueryRow(ctx, query, id, userID), &t)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan transaction: %w", err)
	}

	return &t, nil
}

// List returns a filtered page of the user's transactions plus the total count.
func (r *TransactionRepository) List(ctx context.Context, userID string, filter domain.TransactionFilter, params pagination.Params) (_ []domain.Transaction, _ int, err error) {
	where, args := buildTransactionFilter(userID, filter)

	ctx, end := database.TraceQuery(ctx, "ListTransactions", "SELECT FROM transactions "+where)
	defer func() { end(err) }()

	var total int
	countQuery := `SELECT count(*) FROM transactions ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	orderCol, ok := sortColumns[filter.SortBy]
	if !ok {
		orderCol = "occurred_on"
	}
	direction := "DESC"
	if strings.EqualFold(filter.SortOrder, "asc") {
		direction = "ASC"
	}

	query := `SELECT ` + transactionColumns + ` FROM transactions ` + where +
		` ORDER BY ` + orderCol + ` ` + direction +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, params.Limit, params.Offset)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	defer rows.Close()

	transactions := []domain.Transaction{}
	for rows.Next() {
		var t domain.Transaction
		if err := scanTransactionRow(rows, &t); err != nil {
			return nil, 0, fmt.Errorf("scan transaction row: %w", err)
		}
		transactions = append(transactions, t)
	}

	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate transaction rows: %w", err)
	}

	return transactions, total, nil
}

// Update modifies an existing transaction owned by its user.
func (r *TransactionRepository) Update(ctx context.Context, t *domain.Transaction) error {
	t.UpdatedAt = time.Now().UTC()

	query := `
		UPDATE transactions
		SET category_id = $1, type = $2, amount = $3, occurred_on = $4, notes = $5, updated_at = $6
		WHERE id = $7 AND user_id = $8`

	ct, err := r.db.Exec(ctx, query,
		t.CategoryID,
		t.Type,
		t.Amount,
		t.OccurredOn,
		t.Notes,
		t.UpdatedAt,
		t.ID,
		t.UserID,
	)
	if err != nil {
		return fmt.Errorf("update transaction: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("transaction", t.ID)
	}

	return nil
}

// SetReceipt records the stored receipt key and public URL on a transaction.
func (r *TransactionRepository) SetReceipt(ctx context.Context, userID, id, receiptKey, receiptURL string) error {
	query := `UPDATE transactions SET receipt_key = $1, receipt_url = $2, updated_at = $3 WHERE id = $4 AND user_id = $5`

	ct, err := r.db.Exec(ctx, query, receiptKey, receiptURL, time.Now().UTC(), id, userID)
	if err != nil {
		return fmt.Errorf("set receipt: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("transaction", id)
	}

	return nil
}

// Delete removes a transaction owned by the given user.
func (r *TransactionRepository) Delete(ctx context.Context, userID, id string) error {
	query := `DELETE FROM transactions WHERE id = $1 AND user_id = $2`

	ct, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("transaction", id)
	}

	return nil
}

// Stats aggregates income and expense totals for the user over an optional
// date range, rounded to two decimals in SQL.
func (r *TransactionRepository) Stats(ctx context.Context, userID string, start, end *time.Time) (_ *domain.DashboardStats, err error) {
	ctx, finish := database.TraceQuery(ctx, "TransactionStats", "SELECT aggregates FROM transactions")
	defer func() { finish(err) }()

	query := `
		SELECT
			COALESCE(ROUND(SUM(amount) FILTER (WHERE type = 'income'), 2), 0),
			COALESCE(ROUND(SUM(amount) FILTER (WHERE type = 'expense'), 2), 0)
		FROM transactions
		WHERE user_id = $1`
	args := []any{userID}

	if start != nil {
		args = append(args, *start)
		query += ` AND occurred_on >= $` + strconv.Itoa(len(args))
	}
	if end != nil {
		args = append(args, *end)
		query += ` AND occurred_on <= $` + strconv.Itoa(len(args))
	}

	var stats domain.DashboardStats
	if err := r.db.QueryRow(ctx, query, args...).Scan(&stats.TotalIncome, &stats.TotalExpense); err != nil {
		return nil, fmt.Errorf("aggregate transaction stats: %w", err)
	}

	stats.Balance = stats.TotalIncome - stats.TotalExpense
	return &stats, nil
}

// buildTransactionFilter assembles the WHERE clause for List and its count query.
func buildTransactionFilter(userID string, filter domain.TransactionFilter) (string, []any) {
	clauses := []string{"user_id = $1"}
	args := []any{userID}

	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}

	if filter.Type != "" {
		add("type = $%d", filter.Type)
	}
	if filter.CategoryID != "" {
		add("category_id = $%d", filter.CategoryID)
	}
	if filter.StartDate != nil {
		add("occurred_on >= $%d", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("occurred_on <= $%d", *filter.EndDate)
	}
	if filter.Search != "" {
		add("notes ILIKE $%d", "%"+escapeLike(filter.Search)+"%")
	}

	return "WHERE " + strings.Join(clauses, " AND "), args
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// escapeLike neutralizes LIKE metacharacters so user search terms match
// literally instead of acting as patterns.
func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func scanTransactionRow(row pgx.Row, t *domain.Transaction) error {
	return row.Scan(
		&t.ID,
		&t.UserID,
		&t.CategoryID,
		&t.Type,
		&t.Amount,
		&t.OccurredOn,
		&t.Notes,
		&t.ReceiptKey,
		&t.ReceiptURL,
		&t.CreatedAt,
		&t.UpdatedAt,
	)
}
