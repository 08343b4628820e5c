// Package main implements a standalone seed script that populates a running
// fintrack instance with realistic demo data. It registers demo accounts and
// creates transactions through the HTTP API, and uses direct SQL only for the
// one thing the API will not do: promoting the first account to admin.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// --------------------------------------------------------------------------
// Configuration helpers
// --------------------------------------------------------------------------

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func apiURL() string {
	return getEnv("FINTRACK_API_URL", "http://localhost:8080")
}

func databaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		getEnv("POSTGRES_USER", "fintrack"),
		getEnv("POSTGRES_PASSWORD", "fintrack_secret"),
		getEnv("POSTGRES_HOST", "localhost"),
		getEnv("POSTGRES_PORT", "5432"),
		getEnv("POSTGRES_DB", "fintrack"),
	)
}

// --------------------------------------------------------------------------
// HTTP helpers
// --------------------------------------------------------------------------

func httpPost(url, token string, body any) (map[string]any, error) {
	return doJSON(http.MethodPost, url, token, body)
}

func httpGet(url, token string) (map[string]any, error) {
	return doJSON(http.MethodGet, url, token, nil)
}

func doJSON(method, url, token string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var result map[string]any
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	return result, nil
}

func field(data map[string]any, path ...string) any {
	var current any = data
	for _, key := range path {
		m, ok := current.(map[string]any)
		if !ok {
			return nil
		}
		current = m[key]
	}
	return current
}

// --------------------------------------------------------------------------
// Seed data definitions
// --------------------------------------------------------------------------

type accountDef struct {
	firstName string
	lastName  string
	email     string
	password  string
	admin     bool
}

var accounts = []accountDef{
	{firstName: "Ada", lastName: "Admin", email: "admin@fintrack.local", password: "AdminPass123", admin: true},
	{firstName: "Maria", lastName: "Avelar", email: "maria@fintrack.local", password: "DemoPass123"},
	{firstName: "Joao", lastName: "Pereira", email: "joao@fintrack.local", password: "DemoPass123"},
}

// expense notes keyed by category name so the demo data reads plausibly.
var expenseNotes = map[string][]string{
	"Groceries":     {"weekly shop", "farmers market", "bakery"},
	"Rent":          {"monthly rent"},
	"Utilities":     {"electricity bill", "water bill", "internet"},
	"Transport":     {"fuel", "metro card", "parking"},
	"Entertainment": {"cinema", "concert tickets", "streaming"},
	"Healthcare":    {"pharmacy", "dentist"},
}

// --------------------------------------------------------------------------
// main
// --------------------------------------------------------------------------

func main() {
	log.SetFlags(log.Ltime | log.Lmsgprefix)
	log.SetPrefix("seed: ")

	ctx := context.Background()
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	for _, account := range accounts {
		token, err := registerOrLogin(account)
		if err != nil {
			log.Fatalf("prepare account %s: %v", account.email, err)
		}

		if account.admin {
			if err := promoteToAdmin(ctx, account.email); err != nil {
				log.Fatalf("promote %s to admin: %v", account.email, err)
			}
			log.Printf("account %s is admin", account.email)
			continue
		}

		n, err := seedTransactions(token, rng)
		if err != nil {
			log.Fatalf("seed transactions for %s: %v", account.email, err)
		}
		log.Printf("account %s seeded with %d transactions", account.email, n)
	}

	log.Println("done")
}

// registerOrLogin creates the account, falling back to login when it already
// exists, and returns an access token.
func registerOrLogin(account accountDef) (string, error) {
	resp, err := httpPost(apiURL()+"/api/v1/auth/register", "", map[string]any{
		"first_name":       account.firstName,
		"last_name":        account.lastName,
		"email":            account.email,
		"password":         account.password,
		"confirm_password": account.password,
	})
	if err != nil {
		resp, err = httpPost(apiURL()+"/api/v1/auth/login", "", map[string]any{
			"identifier": account.email,
			"password":   account.password,
		})
		if err != nil {
			return "", err
		}
	}

	token, _ := field(resp, "data", "tokens", "access_token").(string)
	if token == "" {
		return "", fmt.Errorf("no access token in response")
	}
	return token, nil
}

// promoteToAdmin sets the role directly in the database. There is
// intentionally no HTTP endpoint for creating the first admin.
func promoteToAdmin(ctx context.Context, email string) error {
	pool, err := pgxpool.New(ctx, databaseDSN())
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	tag, err := pool.Exec(ctx, `UPDATE users SET role = 'admin' WHERE email = lower($1)`, email)
	if err != nil {
		return fmt.Errorf("update role: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no user with email %s", email)
	}
	return nil
}

type category struct {
	ID   string
	Name string
	Type string
}

func listCategories(token string) ([]category, error) {
	resp, err := httpGet(apiURL()+"/api/v1/categories", token)
	if err != nil {
		return nil, err
	}

	items, _ := resp["data"].([]any)
	categories := make([]category, 0, len(items))
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		c := category{}
		c.ID, _ = m["id"].(string)
		c.Name, _ = m["name"].(string)
		c.Type, _ = m["type"].(string)
		if c.ID != "" {
			categories = append(categories, c)
		}
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("no categories found; have migrations run?")
	}
	return categories, nil
}

// seedTransactions writes three months of plausible income and expenses.
func seedTransactions(token string, rng *rand.Rand) (int, error) {
	categories, err := listCategories(token)
	if err != nil {
		return 0, err
	}

	var incomes, expenses []category
	for _, c := range categories {
		if c.Type == "income" {
			incomes = append(incomes, c)
		} else {
			expenses = append(expenses, c)
		}
	}
	if len(expenses) == 0 {
		return 0, fmt.Errorf("no expense categories found")
	}

	count := 0
	now := time.Now().UTC()
	for monthsAgo := 2; monthsAgo >= 0; monthsAgo-- {
		monthStart := now.AddDate(0, -monthsAgo, 0)

		// One salary payment per month.
		if len(incomes) > 0 {
			if err := createTransaction(token, incomes[0].ID, "income",
				2800+float64(rng.Intn(400)), monthStart, "salary"); err != nil {
				return count, err
			}
			count++
		}

		// A handful of expenses spread through the month.
		for i := 0; i < 8; i++ {
			c := expenses[rng.Intn(len(expenses))]
			day := monthStart.AddDate(0, 0, rng.Intn(27))
			amount := 5 + rng.Float64()*120
			if err := createTransaction(token, c.ID, "expense", amount, day, pickNote(rng, c.Name)); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}

func createTransaction(token, categoryID, txType string, amount float64, on time.Time, notes string) error {
	_, err := httpPost(apiURL()+"/api/v1/transactions", token, map[string]any{
		"category_id": categoryID,
		"type":        txType,
		"amount":      float64(int(amount*100)) / 100,
		"occurred_on": on.Format("2006-01-02"),
		"notes":       notes,
	})
	return err
}

func pickNote(rng *rand.Rand, categoryName string) string {
	notes := expenseNotes[categoryName]
	if len(notes) == 0 {
		return ""
	}
	return notes[rng.Intn(len(notes))]
}
