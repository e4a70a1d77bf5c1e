package onboarding

import "time"

// Flag records that a user has seen an onboarding tutorial.
type Flag struct {
	UserID   string    `json:"userId" db:"user_id"`
	Tutorial string    `json:"tutorial" db:"tutorial"`
	SeenAt   time.Time `json:"seenAt" db:"seen_at"`
}
