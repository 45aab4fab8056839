// Package store provides SQLite-backed storage for cohort query records.
//
// A record holds the submitted query document, its lifecycle status and,
// once processed, the compiled pipeline or the error that rejected it.
//
// # Lifecycle
//
//	CREATED    → PROCESSING, CANCELLED
//	PROCESSING → READY, FAILED, CANCELLED
//	FAILED     → PROCESSING, CANCELLED
//
// READY and CANCELLED are terminal. A FAILED query may be processed again.
// Illegal transitions return ErrInvalidTransition; processing a cancelled
// query returns ErrCancelled.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - Single connection: SQLite allows one writer at a time
//
// Listings are ordered by created_at, then id COLLATE BINARY.
package store
