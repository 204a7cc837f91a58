package models

import "time"

// User is the persisted registration record.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Country   string    `json:"country,omitempty"`
	Segment   string    `json:"segment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Enrichment carries the optional attributes resolved from the external
// profile dependency. A zero value means the dependency was skipped or
// degraded.
type Enrichment struct {
	Country string `json:"country,omitempty"`
	Segment string `json:"segment,omitempty"`
}
