package event

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/avelar/fintrack/internal/domain"
	pkgkafka "github.com/avelar/fintrack/pkg/kafka"
)

// Kafka topic constants for fintrack domain events.
const (
	TopicUserRegistered    = "fintrack.user.registered"
	TopicUserUpdated       = "fintrack.user.updated"
	TopicUserPasswordReset = "fintrack.user.password_reset"

	TopicTransactionCreated = "fintrack.transaction.created"
	TopicTransactionDeleted = "fintrack.transaction.deleted"
)

// Aggregate type constants.
const (
	AggregateTypeUser        = "user"
	AggregateTypeTransaction = "transaction"
)

// Source identifier for events originating from this service.
const SourceFintrack = "fintrack-api"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// UserUpdatedData is the payload for a user.updated event.
type UserUpdatedData struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	PhoneNumber string `json:"phone_number,omitempty"`
	Role        string `json:"role"`
	IsActive    bool   `json:"is_active"`
}

// UserPasswordResetData is the payload for a user.password_reset event.
type UserPasswordResetData struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}

// TransactionCreatedData is the payload for a transaction.created event.
type TransactionCreatedData struct {
	ID         string  `json:"id"`
	UserID     string  `json:"user_id"`
	CategoryID string  `json:"category_id"`
	Type       string  `json:"type"`
	Amount     float64 `json:"amount"`
}

// TransactionDeletedData is the payload for a transaction.deleted event.
type TransactionDeletedData struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// Publisher is the event-publishing surface the services depend on. Tests
// substitute a stub so no broker is needed.
type Publisher interface {
	PublishUserRegistered(ctx context.Context, user *domain.User) error
	PublishUserUpdated(ctx context.Context, user *domain.User) error
	PublishUserPasswordReset(ctx context.Context, userID, email string) error
	PublishTransactionCreated(ctx context.Context, tx *domain.Transaction) error
	PublishTransactionDeleted(ctx context.Context, userID, id string) error
}

// Producer publishes fintrack domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

var _ Publisher = (*Producer)(nil)

// NewProducer creates a new event producer.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:        user.ID,
		Email:     user.Email,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		Role:      user.Role,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, AggregateTypeUser, SourceFintrack, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
		slog.String("email", user.Email),
	)

	return nil
}

// PublishUserUpdated publishes a user.updated event.
func (p *Producer) PublishUserUpdated(ctx context.Context, user *domain.User) error {
	data := UserUpdatedData{
		ID:          user.ID,
		Email:       user.Email,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		PhoneNumber: user.PhoneNumber,
		Role:        user.Role,
		IsActive:    user.IsActive,
	}

	event, err := pkgkafka.NewEvent(TopicUserUpdated, user.ID, AggregateTypeUser, SourceFintrack, data)
	if err != nil {
		return fmt.Errorf("create user.updated event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserUpdated, event); err != nil {
		return fmt.Errorf("publish user.updated event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.updated event",
		slog.String("user_id", user.ID),
	)

	return nil
}

// PublishUserPasswordReset publishes a user.password_reset event.
func (p *Producer) PublishUserPasswordReset(ctx context.Context, userID, email string) error {
	data := UserPasswordResetData{UserID: userID, Email: email}

	event, err := pkgkafka.NewEvent(TopicUserPasswordReset, userID, AggregateTypeUser, SourceFintrack, data)
	if err != nil {
		return fmt.Errorf("create user.password_reset event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserPasswordReset, event); err != nil {
		return fmt.Errorf("publish user.password_reset event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.password_reset event",
		slog.String("user_id", userID),
	)

	return nil
}

// PublishTransactionCreated publishes a transaction.created event.
func (p *Producer) PublishTransactionCreated(ctx context.Context, tx *domain.Transaction) error {
	data := TransactionCreatedData{
		ID:         tx.ID,
		UserID:     tx.UserID,
		CategoryID: tx.CategoryID,
		Type:       tx.Type,
		Amount:     tx.Amount,
	}

	event, err := pkgkafka.NewEvent(TopicTransactionCreated, tx.ID, AggregateTypeTransaction, SourceFintrack, data)
	if err != nil {
		return fmt.Errorf("create transaction.created event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicTransactionCreated, event); err != nil {
		return fmt.Errorf("publish transaction.created event: %w", err)
	}

	p.logger.DebugContext(ctx, "published transaction.created event",
		slog.String("transaction_id", tx.ID),
		slog.String("user_id", tx.UserID),
	)

	return nil
}

// PublishTransactionDeleted publishes a transaction.deleted event.
func (p *Producer) PublishTransactionDeleted(ctx context.Context, userID, id string) error {
	data := TransactionDeletedData{ID: id, UserID: userID}

	event, err := pkgkafka.NewEvent(TopicTransactionDeleted, id, AggregateTypeTransaction, SourceFintrack, data)
	if err != nil {
		return fmt.Errorf("create transaction.deleted event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicTransactionDeleted, event); err != nil {
		return fmt.Errorf("publish transaction.deleted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published transaction.deleted event",
		slog.String("transaction_id", id),
	)

	return nil
}
