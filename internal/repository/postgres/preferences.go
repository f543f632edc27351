// Package postgres implements the durable repositories: notification
// preferences and the email delivery job queue.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// PreferenceRepo implements preference.Repository against PostgreSQL.
type PreferenceRepo struct{ db *sql.DB }

// NewPreferenceRepo creates a Postgres-backed preference repository.
func NewPreferenceRepo(db *sql.DB) *PreferenceRepo { return &PreferenceRepo{db: db} }

func (r *PreferenceRepo) UserExists(ctx context.Context, userID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("user exists: %w", err)
	}
	return exists, nil
}

func (r *PreferenceRepo) Get(ctx context.Context, userID string) (*domain.NotificationPreference, error) {
	var pref domain.NotificationPreference
	var thresholds pq.Int64Array
	var quietStart, quietEnd, quietTZ sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT user_id, socket_enabled, email_enabled, thresholds,
		       quiet_start, quiet_end, quiet_timezone, updated_at
		FROM notification_preferences
		WHERE user_id = $1
	`, userID).Scan(
		&pref.UserID,
		&pref.ChannelEnabled.Socket,
		&pref.ChannelEnabled.Email,
		&thresholds,
		&quietStart,
		&quietEnd,
		&quietTZ,
		&pref.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get preference: %w", err)
	}

	pref.Thresholds = make([]int, len(thresholds))
	for i, t := range thresholds {
		pref.Thresholds[i] = int(t)
	}
	if quietStart.Valid && quietEnd.Valid && quietTZ.Valid {
		pref.QuietHours = &domain.QuietHours{
			Start:    quietStart.String,
			End:      quietEnd.String,
			Timezone: quietTZ.String,
		}
	}
	return &pref, nil
}

func (r *PreferenceRepo) Upsert(ctx context.Context, pref domain.NotificationPreference) error {
	thresholds := make(pq.Int64Array, len(pref.Thresholds))
	for i, t := range pref.Thresholds {
		thresholds[i] = int64(t)
	}

	var quietStart, quietEnd, quietTZ sql.NullString
	if pref.QuietHours != nil {
		quietStart = sql.NullString{String: pref.QuietHours.Start, Valid: true}
		quietEnd = sql.NullString{String: pref.QuietHours.End, Valid: true}
		quietTZ = sql.NullString{String: pref.QuietHours.Timezone, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_preferences
			(user_id, socket_enabled, email_enabled, thresholds, quiet_start, quiet_end, quiet_timezone, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (user_id) DO UPDATE SET
			socket_enabled = $2,
			email_enabled = $3,
			thresholds = $4,
			quiet_start = $5,
			quiet_end = $6,
			quiet_timezone = $7,
			updated_at = $8
	`, pref.UserID, pref.ChannelEnabled.Socket, pref.ChannelEnabled.Email,
		thresholds, quietStart, quietEnd, quietTZ, pref.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert preference: %w", err)
	}
	return nil
}
