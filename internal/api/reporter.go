package api

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// LoginPath is where an expired interactive session is sent.
const LoginPath = "/login"

// toastMessageLimit is the longest message a toast can hold; anything longer
// gets a modal.
const toastMessageLimit = 30

// ErrSessionExpired distinguishes the 401 path during server rendering,
// where there is no user session to redirect.
var ErrSessionExpired = errors.New("session expired")

// Notifier is the presentation surface for interactive failures.
// Calls are fire-and-forget.
type Notifier interface {
	Toast(message, level string)
	Modal(title, message, level string)
}

// Navigator triggers a client-side route change.
type Navigator interface {
	Push(path string)
}

// FailureReporter is the environment strategy selected at gateway
// construction. ReportFailure's return value is what the call resolves with:
// an error in render contexts, nil in interactive ones.
type FailureReporter interface {
	ReportFailure(uerr *UniformError) error
	SessionExpired() error
}

// RejectingReporter surfaces failures as errors. Used during server
// rendering, where the orchestrator converts them to response statuses.
type RejectingReporter struct{}

func (RejectingReporter) ReportFailure(uerr *UniformError) error {
	return uerr
}

func (RejectingReporter) SessionExpired() error {
	return fmt.Errorf("cannot redirect during render: %w", ErrSessionExpired)
}

// NotifyingReporter surfaces failures as user-facing notifications and never
// as errors. Used during interactive navigation, where no caller is checking
// a rejected call; the notification IS the error channel.
type NotifyingReporter struct {
	Notifier  Notifier
	Navigator Navigator
}

func (r *NotifyingReporter) ReportFailure(uerr *UniformError) error {
	if utf8.RuneCountInString(uerr.Message) > toastMessageLimit {
		r.Notifier.Modal(uerr.Title, uerr.Message, "error")
	} else {
		r.Notifier.Toast(uerr.Message, "error")
	}
	return nil
}

func (r *NotifyingReporter) SessionExpired() error {
	r.Navigator.Push(LoginPath)
	return nil
}
