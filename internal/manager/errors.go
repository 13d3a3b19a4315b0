package manager

import (
	"manyllmd/internal/arbiter"
)

// artifactNotFoundError indicates the requested id is unknown to the store.
type artifactNotFoundError struct{ id string }

func (e artifactNotFoundError) Error() string { return "artifact not found: " + e.id }

func ErrArtifactNotFound(id string) error { return artifactNotFoundError{id: id} }

func IsArtifactNotFound(err error) bool {
	_, ok := err.(artifactNotFoundError)
	return ok
}

// wrongStateError indicates the artifact is not in the state the operation
// requires (activation and removal need local).
type wrongStateError struct{ id, state string }

func (e wrongStateError) Error() string {
	return "artifact " + e.id + " is " + e.state + ", operation requires local"
}

func ErrWrongState(id, state string) error { return wrongStateError{id: id, state: state} }

func IsWrongState(err error) bool {
	_, ok := err.(wrongStateError)
	return ok
}

// integrityError indicates verification rejected the bytes at rest.
type integrityError struct{ id string }

func (e integrityError) Error() string { return "artifact failed integrity verification: " + e.id }

func ErrIntegrity(id string) error { return integrityError{id: id} }

func IsIntegrity(err error) bool {
	_, ok := err.(integrityError)
	return ok
}

// allocationError carries the plan that predicted the risk so callers can
// explain why the activation was rejected.
type allocationError struct {
	id    string
	plan  arbiter.Plan
	cause error
}

func (e allocationError) Error() string {
	return "allocation failed for " + e.id + ": " + e.cause.Error()
}

func (e allocationError) Unwrap() error { return e.cause }

func ErrAllocation(id string, plan arbiter.Plan, cause error) error {
	return allocationError{id: id, plan: plan, cause: cause}
}

func IsAllocation(err error) bool {
	_, ok := err.(allocationError)
	return ok
}

// PlanOf extracts the allocation plan attached to an allocation error.
func PlanOf(err error) (arbiter.Plan, bool) {
	ae, ok := err.(allocationError)
	if !ok {
		return arbiter.Plan{}, false
	}
	return ae.plan, true
}

// activationError wraps engine/verifier operational faults with the artifact id.
type activationError struct {
	id    string
	cause error
}

func (e activationError) Error() string { return "activation failed for " + e.id + ": " + e.cause.Error() }

func (e activationError) Unwrap() error { return e.cause }

func ErrActivation(id string, cause error) error { return activationError{id: id, cause: cause} }

func IsActivation(err error) bool {
	_, ok := err.(activationError)
	return ok
}
