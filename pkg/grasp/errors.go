package grasp

import "errors"

var (
	// ErrClassificationMiss means a contact's collider was unknown.
	ErrClassificationMiss = errors.New("collider not classified")
	// ErrStaleActor means a held actor was removed from the solver.
	ErrStaleActor = errors.New("actor no longer in solver")
	// ErrInvariantViolation means bookkeeping and solver state disagree.
	ErrInvariantViolation = errors.New("grasp invariant violated")
)
