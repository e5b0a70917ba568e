package biz

import "errors"

var (
	// ErrEmptySubmission rejects a submit with no text and no attachments.
	ErrEmptySubmission = errors.New("submission has no text and no attachments")

	// ErrNoModelConfigured rejects a submit when no model is selected.
	ErrNoModelConfigured = errors.New("no model configured")

	// ErrSessionNotFound marks a session id with no stored record.
	ErrSessionNotFound = errors.New("session not found")
)
