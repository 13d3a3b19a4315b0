package engine

import (
	"errors"
	"fmt"
)

// unavailableError signals a missing runtime dependency (e.g. a binary built
// without llama support) so callers can report 503 rather than 500.
type unavailableError struct{ msg string }

func (e unavailableError) Error() string { return e.msg }

func ErrUnavailable(msg string) error { return unavailableError{msg: msg} }

func IsUnavailable(err error) bool {
	var e unavailableError
	return errors.As(err, &e)
}

// budgetExceededError signals that the load was rejected because the artifact
// does not fit the memory budget handed to the engine.
type budgetExceededError struct{ need, budget int64 }

func (e budgetExceededError) Error() string {
	return fmt.Sprintf("model needs %d bytes but budget is %d", e.need, e.budget)
}

func ErrBudgetExceeded(need, budget int64) error { return budgetExceededError{need: need, budget: budget} }

func IsBudgetExceeded(err error) bool {
	var e budgetExceededError
	return errors.As(err, &e)
}
