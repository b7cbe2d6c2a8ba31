package models

import "time"

// Product is a single tracked item belonging to one user.
type Product struct {
	ID               int64
	UserID           int64
	URL              string
	Title            string
	InitialPrice     float64
	LastCheckedPrice *float64 // nil until the monitor's first successful check
	TargetPrice      *float64 // optional user-set threshold
	CreatedAt        time.Time
}
