package domain

import (
	"fmt"
	"time"
)

// AuthError means no token or portal session could be obtained. It is fatal to a run.
type AuthError struct {
	Op  string
	Err error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("auth %s: %v", e.Op, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FetchError means the usage call for one pair failed after bounded retries.
type FetchError struct {
	AssetKey string
	Day      time.Time
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch usage %s@%s after %d attempts: %v", e.AssetKey, e.Day.Format(DayLayout), e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// StoreError means a storage read or append failed for one asset or pair.
type StoreError struct {
	Op       string
	AssetKey string
	Day      time.Time
	Err      error
}

func (e *StoreError) Error() string {
	if e.Day.IsZero() {
		return fmt.Sprintf("store %s %s: %v", e.Op, e.AssetKey, e.Err)
	}
	return fmt.Sprintf("store %s %s@%s: %v", e.Op, e.AssetKey, e.Day.Format(DayLayout), e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }
