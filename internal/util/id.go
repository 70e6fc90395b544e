package util

import "github.com/google/uuid"

// NewID returns a random UUIDv4 string used for job IDs and scratch file names.
func NewID() string {
	return uuid.NewString()
}
