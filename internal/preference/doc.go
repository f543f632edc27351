// Package preference implements the notification preference store.
//
// Preferences gate every alert: which channels fire, which utilization
// thresholds count as tiers, and when quiet hours defer delivery. A user
// with no stored row gets defaults — absence of preferences is never an
// error, only an unknown user is.
//
// The service layer contains pure business logic and depends on the
// Repository interface defined in repository.go. It never imports
// net/http or database/sql directly.
package preference
