package credentials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Helper operation verbs, passed as the first argument of the helper
// program. The alternative-password helper understands opCreate and
// opDelete only.
const (
	opReserve       = "reserve"
	opReserveRandom = "reserve_random"
	opValidate      = "validate"
	opCheck         = "check"
	opChange        = "change"
	opDelete        = "delete"
	opCreate        = "create"
)

// Exit codes of the helper contract. Any other non-zero code is
// unclassified and reported with the helper's stderr.
const (
	exitMismatch      = 1
	exitChangeFailed  = 3
	exitCreateFailed  = 4
	exitDeleteFailed  = 5
	exitLoginNotFound = 6
	exitAltEntry      = 7
	exitStrength      = 11
	exitTimeout       = 12
)

// runHelper executes a helper program with the given arguments, feeding the
// password on stdin when one is supplied. The process is killed when the
// operation timeout elapses.
func (p *Provisioner) runHelper(ctx context.Context, program string, args []string, stdin string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, program, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}

	err := cmd.Run()
	detail := strings.TrimSpace(stderr.String())
	if err == nil {
		return "", nil
	}
	if ctx.Err() != nil {
		return detail, fmt.Errorf("helper %s timed out after %v", program, p.timeout)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return detail, &helperExit{code: exitErr.ExitCode(), detail: detail}
	}
	return detail, fmt.Errorf("run helper %s: %w", program, err)
}

// helperExit is the raw non-zero exit of a helper invocation, classified by
// the calling operation into an OpError.
type helperExit struct {
	code   int
	detail string
}

func (e *helperExit) Error() string {
	return fmt.Sprintf("helper exited with code %d: %s", e.code, e.detail)
}

// classify translates a helper failure into an OpError. Exit codes outside
// the contract map to FailureUnclassified with the helper's stderr as
// detail.
func classify(err error, namespace, login string) error {
	if err == nil {
		return nil
	}
	var exit *helperExit
	if !errors.As(err, &exit) {
		if strings.Contains(err.Error(), "timed out") {
			return &OpError{Kind: FailureTimeout, Namespace: namespace, Login: login, Detail: err.Error()}
		}
		return err
	}

	op := &OpError{Namespace: namespace, Login: login, Detail: exit.detail}
	switch exit.code {
	case exitMismatch:
		op.Kind = FailureMismatch
	case exitChangeFailed:
		op.Kind = FailureChange
	case exitCreateFailed:
		op.Kind = FailureCreation
	case exitDeleteFailed:
		op.Kind = FailureDeletion
	case exitLoginNotFound:
		op.Kind = FailureLoginNotFound
	case exitAltEntry:
		op.Kind = FailureCreation
		if op.Detail == "" {
			op.Detail = "problem with password entry"
		}
	case exitStrength:
		op.Kind = FailureStrength
	case exitTimeout:
		op.Kind = FailureTimeout
	default:
		op.Kind = FailureUnclassified
		if op.Detail == "" {
			op.Detail = fmt.Sprintf("helper exited with code %d", exit.code)
		}
	}
	return op
}

// defaultTimeout bounds a single helper invocation when the configuration
// does not say otherwise.
const defaultTimeout = 2 * time.Minute
