package preference

import "errors"

// Sentinel errors for the preference service layer.
var (
	// ErrUserNotFound means the userID itself is unknown — never returned
	// for a known user with no stored preferences.
	ErrUserNotFound = errors.New("user not found")
)
