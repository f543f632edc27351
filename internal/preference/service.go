package preference

import (
	"context"
	"fmt"
	"time"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// Service implements preference business logic. It is safe for concurrent
// use; all mutation goes through Update.
type Service struct {
	repo Repository
}

// NewService creates a preference service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Get returns the user's notification preference, falling back to defaults
// when no row is stored. Returns ErrUserNotFound only when the userID itself
// is unknown.
func (s *Service) Get(ctx context.Context, userID string) (domain.NotificationPreference, error) {
	if userID == "" {
		return domain.NotificationPreference{}, &domain.ValidationError{Field: "user_id", Reason: "required"}
	}

	exists, err := s.repo.UserExists(ctx, userID)
	if err != nil {
		return domain.NotificationPreference{}, fmt.Errorf("check user %s: %w", userID, err)
	}
	if !exists {
		return domain.NotificationPreference{}, ErrUserNotFound
	}

	stored, err := s.repo.Get(ctx, userID)
	if err != nil {
		return domain.NotificationPreference{}, fmt.Errorf("load preference %s: %w", userID, err)
	}
	if stored == nil {
		return domain.DefaultPreference(userID), nil
	}
	return *stored, nil
}

// Update applies a partial update, validates the result, and persists it.
func (s *Service) Update(ctx context.Context, userID string, update domain.PreferenceUpdate) (domain.NotificationPreference, error) {
	current, err := s.Get(ctx, userID)
	if err != nil {
		return domain.NotificationPreference{}, err
	}

	if update.SocketEnabled != nil {
		current.ChannelEnabled.Socket = *update.SocketEnabled
	}
	if update.EmailEnabled != nil {
		current.ChannelEnabled.Email = *update.EmailEnabled
	}
	if update.Thresholds != nil {
		if err := domain.ValidateThresholds(update.Thresholds); err != nil {
			return domain.NotificationPreference{}, err
		}
		current.Thresholds = update.Thresholds
	}
	if update.ClearQuiet {
		current.QuietHours = nil
	} else if update.QuietHours != nil {
		if err := update.QuietHours.Validate(); err != nil {
			return domain.NotificationPreference{}, err
		}
		qh := *update.QuietHours
		current.QuietHours = &qh
	}
	current.UpdatedAt = time.Now().UTC()

	if err := s.repo.Upsert(ctx, current); err != nil {
		return domain.NotificationPreference{}, fmt.Errorf("store preference %s: %w", userID, err)
	}
	return current, nil
}
