package credentials

import (
	"errors"
	"fmt"
)

// FailureKind classifies a failed credential operation.
type FailureKind string

const (
	FailureMismatch      FailureKind = "password-mismatch"
	FailureChange        FailureKind = "change-failed"
	FailureCreation      FailureKind = "creation-failed"
	FailureDeletion      FailureKind = "deletion-failed"
	FailureLoginNotFound FailureKind = "login-not-found"
	FailureStrength      FailureKind = "strength-policy"
	FailureTimeout       FailureKind = "timeout"
	FailureUnclassified  FailureKind = "unclassified"
)

// OpError is a classified credential operation failure.
type OpError struct {
	Kind      FailureKind
	Namespace string
	Login     string
	// Detail carries backend diagnostics, typically the helper's stderr.
	Detail string
}

// Error implements the error interface.
func (e *OpError) Error() string {
	msg := fmt.Sprintf("credential operation failed (%s) in namespace %q for login %q", e.Kind, e.Namespace, e.Login)
	if e.Detail != "" {
		msg += ": " + e.Detail
	}
	return msg
}

// ErrEmptyPassword is returned before any backend is contacted when an
// operation that requires a password receives an empty one.
var ErrEmptyPassword = errors.New("empty password is not allowed")

// ErrDuplicateDescription is returned when an alternative password reuses a
// description already present for the user in the namespace.
var ErrDuplicateDescription = errors.New("alternative password description already in use")
