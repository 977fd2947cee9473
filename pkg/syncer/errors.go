package syncer

import "fmt"

// ConsistencyError marks a state that must never occur under correct
// operation, such as a source ref already bound to a different user.
// Attempts failing this way are recorded and never retried automatically.
type ConsistencyError struct {
	msg string
}

func consistencyErrorf(format string, args ...any) *ConsistencyError {
	return &ConsistencyError{msg: fmt.Sprintf(format, args...)}
}

// Error implements the error interface.
func (e *ConsistencyError) Error() string {
	return "consistency violation: " + e.msg
}
