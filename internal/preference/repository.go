package preference

import (
	"context"

	"github.com/spanexx/personal-finance-dashboard-sub004/internal/domain"
)

// Repository defines the data access contract for notification preferences.
type Repository interface {
	// UserExists reports whether the userID is known to the system.
	UserExists(ctx context.Context, userID string) (bool, error)

	// Get returns the stored preference for userID, or nil if the user has
	// never saved one. A nil result with nil error is normal.
	Get(ctx context.Context, userID string) (*domain.NotificationPreference, error)

	// Upsert stores the full preference row, overwriting any existing one.
	Upsert(ctx context.Context, pref domain.NotificationPreference) error
}
