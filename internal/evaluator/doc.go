// Package evaluator decides whether a budget state change is a newly
// notifiable condition.
//
// Conditions arrive as messages on a Redis queue. For each one the
// evaluator loads the user's preferences, works out which threshold tiers
// were crossed, and races all other evaluator processes for the suppression
// ledger slot of each tier. The ledger's atomic create-if-absent is the
// only dedup gate; the evaluator itself holds no cross-call state.
//
// Evaluate is safe to call concurrently from any number of goroutines and
// processes.
package evaluator
