package model

import "time"

// GlobalSettings is the single operator-level configuration record. Its
// Config map is the middle tier of the effective-configuration merge; the
// encrypted API key is the fallback credential for jobs without their own.
type GlobalSettings struct {
	ID              int
	Config          map[string]any
	APIKeyEncrypted string
	APIKeyLast4     string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
