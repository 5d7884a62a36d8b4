package api

import "errors"

// Sentinel kinds for API errors.
var (
	ErrBadRequest      = errors.New("bad request")
	ErrPayloadTooLarge = errors.New("payload too large")
)

// Client-facing error messages. Details stay in the operational log.
const (
	msgInvalidPayload  = "Invalid payload"
	msgPayloadTooLarge = "Payload too large"
	msgTooManyRequests = "Too many requests"
	msgInternalError   = "Internal error"
)
