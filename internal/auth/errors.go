package auth

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by a Store that has nothing persisted yet.
var ErrNotFound = errors.New("token record not found")

// PersistenceError wraps a Store failure.
type PersistenceError struct {
	Op  string // "load" or "save"
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("token store %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// ExchangeError is a failed call to the token endpoint, or a response that
// lacks the tokens the grant should have produced.
type ExchangeError struct {
	Grant      string // grant_type sent
	Token      string // which token was being obtained: "access", "refresh" or "both"
	StatusCode int    // 0 when no response was received
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	msg := fmt.Sprintf("token exchange (%s, %s token)", e.Grant, e.Token)
	switch {
	case e.Err != nil:
		return msg + ": " + e.Err.Error()
	case e.Body != "":
		return fmt.Sprintf("%s failed: %d - %s", msg, e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("%s failed: %d", msg, e.StatusCode)
	}
}

func (e *ExchangeError) Unwrap() error { return e.Err }

// BootstrapError is a failed interactive login.
type BootstrapError struct {
	Stage string // "config", "authorize", "exchange" or "persist"
	Err   error
}

func (e *BootstrapError) Error() string {
	return fmt.Sprintf("bootstrap failed at %s: %v", e.Stage, e.Err)
}

func (e *BootstrapError) Unwrap() error { return e.Err }
