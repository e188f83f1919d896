package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pklhub/pklhub-api/internal/models"
	pkgerrors "github.com/pklhub/pklhub-api/pkg/errors"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"github.com/pklhub/pklhub-api/pkg/metrics"
	"go.uber.org/zap"
)

// GetUserByEmail fetches an account row for credential verification.
// The lookup is case-insensitive. A missing account is reported as
// ErrNotFound so the caller can fold it into a generic credential error.
func (c *Client) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	start := time.Now()
	operation := "getUserByEmail"

	query := `
		SELECT id, email, password_hash, created_at
		FROM users
		WHERE lower(email) = lower($1)
	`

	var user models.User
	err := c.pool.QueryRow(ctx, query, strings.TrimSpace(email)).Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.CreatedAt,
	)

	duration := metrics.MeasureDuration(start)

	if errors.Is(err, pgx.ErrNoRows) {
		recordMetrics(operation, "not_found", duration)
		return nil, pkgerrors.NotFoundError("user")
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return nil, fmt.Errorf("failed to query user: %w", err)
	}

	recordMetrics(operation, "success", duration)
	return &user, nil
}

// CreateUser inserts an account row. Inserting an email that already exists
// returns ErrConflict.
func (c *Client) CreateUser(ctx context.Context, user *models.User) error {
	start := time.Now()
	operation := "createUser"

	query := `
		INSERT INTO users (id, email, password_hash)
		VALUES ($1, $2, $3)
		ON CONFLICT (email) DO NOTHING
	`

	result, err := c.pool.Exec(ctx, query, user.ID, strings.TrimSpace(user.Email), user.PasswordHash)

	duration := metrics.MeasureDuration(start)

	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return fmt.Errorf("failed to create user: %w", err)
	}

	if result.RowsAffected() == 0 {
		recordMetrics(operation, "conflict", duration)
		return fmt.Errorf("user %s: %w", user.Email, pkgerrors.ErrConflict)
	}

	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration,
		zap.String("user_id", user.ID))

	return nil
}
