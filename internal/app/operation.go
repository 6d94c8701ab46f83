package app

import "time"

// Operation status values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Operation tracks one CLI command for the log. Its ID tags every log line
// written while the command runs.
type Operation struct {
	ID         string
	Name       string
	Parameters string
	Status     string
	StartedAt  time.Time
}

// NewOperation starts an operation now.
func NewOperation(name, parameters string) *Operation {
	now := time.Now().UTC()
	return &Operation{
		ID:         now.Format("20060102T150405Z"),
		Name:       name,
		Parameters: parameters,
		Status:     StatusSuccess,
		StartedAt:  now,
	}
}

// Fail marks the operation as failed when err is non-nil and returns err
// unchanged, so it can wrap a return statement.
func (op *Operation) Fail(err error) error {
	if err != nil {
		op.Status = StatusError
	}
	return err
}

// Succeeded reports whether no step of the operation has failed.
func (op *Operation) Succeeded() bool {
	return op.Status == StatusSuccess
}
