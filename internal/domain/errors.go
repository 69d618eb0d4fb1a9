package domain

import "errors"

var (
	ErrNotConnected  = errors.New("transport not connected")
	ErrNoRecipients  = errors.New("message has no recipients")
	ErrEmptyBody     = errors.New("message body is empty")
	ErrGroupNotFound = errors.New("group not found")
	ErrUnknownSink   = errors.New("unknown outbound sink")
	ErrMissingUserID = errors.New("event has no user id")
)
