package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/desertthunder/ridesync/internal/shared"
)

// State is a step of the export session.
type State int

const (
	StateStart State = iota
	StateCookieConsentHandled
	StateCredentialEntered
	StateChallengeResolved
	StatePasswordEntered
	StateAuthenticated
	StateExtracting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCookieConsentHandled:
		return "cookie_consent_handled"
	case StateCredentialEntered:
		return "credential_entered"
	case StateChallengeResolved:
		return "challenge_resolved"
	case StatePasswordEntered:
		return "password_entered"
	case StateAuthenticated:
		return "authenticated"
	case StateExtracting:
		return "extracting"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// StepError is returned when the session cannot reach Target during login.
//
// It matches [shared.ErrAuthFailed], and also [shared.ErrTimeout] when the step ran out of time.
type StepError struct {
	From   State
	Target State
	Err    error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("login stuck at %s waiting for %s: %v", e.From, e.Target, e.Err)
}

func (e *StepError) Unwrap() []error {
	errs := []error{shared.ErrAuthFailed, e.Err}
	if errors.Is(e.Err, context.DeadlineExceeded) {
		errs = append(errs, shared.ErrTimeout)
	}
	return errs
}

// ItemError describes why one activity could not be exported.
type ItemError struct {
	ActivityID string
	Stage      string
	Err        error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("activity %s: %s: %v", e.ActivityID, e.Stage, e.Err)
}

func (e *ItemError) Unwrap() error { return e.Err }
