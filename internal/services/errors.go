// Package services defines the business logic for matching rounds,
// follow-ups, streak tracking, inactivity pruning, and roster management.
// This file centralizes common service-level error values so that they can
// be consistently returned by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer;
// translation into user-facing messages is performed at the handler layer
// (Telegram handlers or the ops API).
package services

import "errors"

var (
	// ErrInvalidResponse is returned when a follow-up response is outside
	// the allowed set ("yes" or "no").
	ErrInvalidResponse = errors.New(`follow-up response must be "yes" or "no"`)

	// ErrMemberNotFound indicates that the referenced member does not
	// exist.
	ErrMemberNotFound = errors.New("member not found")

	// ErrGroupNotFound indicates that the referenced match group does not
	// exist.
	ErrGroupNotFound = errors.New("match group not found")

	// ErrNotConfigured is returned when an operation needs the group
	// binding but /setup has never run.
	ErrNotConfigured = errors.New("no group binding configured")
)
