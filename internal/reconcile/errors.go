package reconcile

import (
	"errors"
	"fmt"
)

// StepLimitError is returned by Drain when a single drain processes more
// notifications than the configured limit. It indicates a feedback loop
// between signal sources.
type StepLimitError struct {
	Limit     int
	Processed int
}

func (e *StepLimitError) Error() string {
	return fmt.Sprintf("step limit exceeded: processed %d notifications (limit %d)", e.Processed, e.Limit)
}

// IsStepLimit reports whether err is a StepLimitError.
// Uses errors.As to handle wrapped errors.
func IsStepLimit(err error) bool {
	var sl *StepLimitError
	return errors.As(err, &sl)
}
