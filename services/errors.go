package services

import "fmt"

// InvalidStatusTransitionError reports a transition attempted from a status
// that does not permit it, including the stale-read case where another request
// moved the pitch first.
type InvalidStatusTransitionError struct {
	PitchID    uint
	FromStatus string
	ToStatus   string
	Reason     string
}

func (e *InvalidStatusTransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid status transition for pitch %d (%s -> %s): %s",
			e.PitchID, e.FromStatus, e.ToStatus, e.Reason)
	}
	return fmt.Sprintf("invalid status transition for pitch %d (%s -> %s)",
		e.PitchID, e.FromStatus, e.ToStatus)
}

// UnauthorizedActionError reports an action attempted by a user who does not
// hold the required role on the project or pitch.
type UnauthorizedActionError struct {
	UserID uint
	Action string
}

func (e *UnauthorizedActionError) Error() string {
	return fmt.Sprintf("user %d is not authorized to %s", e.UserID, e.Action)
}

// ValidationError reports malformed or out-of-range input.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
	}
	return "validation failed: " + e.Reason
}

// PaymentStateConflictError reports a mutation blocked because money has
// already moved, such as deleting a paid milestone.
type PaymentStateConflictError struct {
	Reason string
}

func (e *PaymentStateConflictError) Error() string {
	return "payment state conflict: " + e.Reason
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// OrphanedReferenceError reports a contest placement pointing at a pitch that
// no longer exists.
type OrphanedReferenceError struct {
	ProjectID uint
	PitchIDs  []uint
}

func (e *OrphanedReferenceError) Error() string {
	return fmt.Sprintf("contest result for project %d references missing pitches %v",
		e.ProjectID, e.PitchIDs)
}
