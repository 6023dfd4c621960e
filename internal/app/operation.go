package app

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Operation identifies one CLI command run. Its ULID tags every log line
// of the run and sorts by start time.
type Operation struct {
	ID      string
	Name    string
	Started time.Time
	Status  string // "success" or "error"
}

// NewOperation starts an operation named after the CLI command.
func NewOperation(name string, now time.Time) *Operation {
	return &Operation{
		ID:      ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String(),
		Name:    name,
		Started: now,
		Status:  "success",
	}
}

// Fail marks the operation as failed.
func (op *Operation) Fail() {
	op.Status = "error"
}
