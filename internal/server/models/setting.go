package models

import "time"

// Setting is a string-keyed configuration value. Value holds serialized JSON.
type Setting struct {
	Key         string
	Value       string
	Description string
	UpdatedAt   time.Time
	UpdatedBy   string
}
