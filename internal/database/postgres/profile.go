package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pklhub/pklhub-api/internal/models"
	pkgerrors "github.com/pklhub/pklhub-api/pkg/errors"
	"github.com/pklhub/pklhub-api/pkg/logger"
	"github.com/pklhub/pklhub-api/pkg/metrics"
	"go.uber.org/zap"
)

const profileColumns = `
	p.id, p.email, p.name, p.nis, p.class, p.phone, p.school, p.major,
	p.internship_company, p.internship_position, p.internship_duration,
	p.address, p.birth_date, p.gender, p.religion,
	p.skills, p.achievements, p.description,
	p.photo_url, p.instagram_url, p.linkedin_url,
	p.created_at, p.updated_at`

// profileUpdateColumns is the set of columns UpdateProfile may touch.
// Unknown keys are skipped so a caller can never write id or created_at.
var profileUpdateColumns = map[string]bool{
	"email":               true,
	"name":                true,
	"nis":                 true,
	"class":               true,
	"phone":               true,
	"school":              true,
	"major":               true,
	"internship_company":  true,
	"internship_position": true,
	"internship_duration": true,
	"address":             true,
	"birth_date":          true,
	"gender":              true,
	"religion":            true,
	"skills":              true,
	"achievements":        true,
	"description":         true,
	"photo_url":           true,
	"instagram_url":       true,
	"linkedin_url":        true,
	"updated_at":          true,
}

func scanProfile(row pgx.Row) (*models.UserProfile, error) {
	var p models.UserProfile
	err := row.Scan(
		&p.ID, &p.Email, &p.Name, &p.NIS, &p.Class, &p.Phone, &p.School, &p.Major,
		&p.InternshipCompany, &p.InternshipPosition, &p.InternshipDuration,
		&p.Address, &p.BirthDate, &p.Gender, &p.Religion,
		&p.Skills, &p.Achievements, &p.Description,
		&p.PhotoURL, &p.InstagramURL, &p.LinkedInURL,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// GetProfile fetches a single profile row by user id
func (c *Client) GetProfile(ctx context.Context, userID string) (*models.UserProfile, error) {
	start := time.Now()
	operation := "getProfile"

	query := fmt.Sprintf("SELECT %s FROM user_profiles p WHERE p.id = $1", profileColumns)

	profile, err := scanProfile(c.pool.QueryRow(ctx, query, userID))

	duration := metrics.MeasureDuration(start)

	if errors.Is(err, pgx.ErrNoRows) {
		recordMetrics(operation, "not_found", duration)
		return nil, pkgerrors.NotFoundError(fmt.Sprintf("profile %s", userID))
	}
	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return nil, fmt.Errorf("failed to query profile: %w", err)
	}

	recordMetrics(operation, "success", duration)
	return profile, nil
}

// InsertProfile creates the profile row for a new identity. Only the id and
// email are set explicitly; every other column takes its schema default.
// Returns the row as persisted.
func (c *Client) InsertProfile(ctx context.Context, profile *models.UserProfile) (*models.UserProfile, error) {
	start := time.Now()
	operation := "insertProfile"

	query := fmt.Sprintf(`
		INSERT INTO user_profiles (id, email)
		VALUES ($1, $2)
		RETURNING %s`, strings.ReplaceAll(profileColumns, "p.", ""))

	created, err := scanProfile(c.pool.QueryRow(ctx, query, profile.ID, profile.Email))

	duration := metrics.MeasureDuration(start)

	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return nil, fmt.Errorf("failed to insert profile: %w", err)
	}

	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration,
		zap.String("user_id", created.ID))

	return created, nil
}

// UpdateProfile applies a partial column/value map to a profile row
func (c *Client) UpdateProfile(ctx context.Context, userID string, updates map[string]interface{}) error {
	start := time.Now()
	operation := "updateProfile"

	// Build dynamic update query with deterministic column order
	columns := make([]string, 0, len(updates))
	for column := range updates {
		if profileUpdateColumns[column] {
			columns = append(columns, column)
		}
	}
	sort.Strings(columns)

	if len(columns) == 0 {
		return nil // Nothing to update
	}

	setClauses := make([]string, 0, len(columns))
	args := make([]interface{}, 0, len(columns)+1)
	for i, column := range columns {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, i+1))
		args = append(args, updates[column])
	}
	args = append(args, userID)

	query := fmt.Sprintf(
		"UPDATE user_profiles SET %s WHERE id = $%d",
		strings.Join(setClauses, ", "),
		len(columns)+1,
	)

	result, err := c.pool.Exec(ctx, query, args...)

	duration := metrics.MeasureDuration(start)

	if err != nil {
		recordMetrics(operation, "error", duration)
		logger.LogAPICall("postgres", operation, "error", duration, zap.Error(err))
		return fmt.Errorf("failed to update profile: %w", err)
	}

	if result.RowsAffected() == 0 {
		recordMetrics(operation, "not_found", duration)
		return pkgerrors.NotFoundError(fmt.Sprintf("profile %s", userID))
	}

	recordMetrics(operation, "success", duration)
	logger.LogAPICall("postgres", operation, "success", duration,
		zap.String("user_id", userID),
		zap.Int("fields", len(columns)))

	return nil
}
