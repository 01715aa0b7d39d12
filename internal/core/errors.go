package core

import "errors"

// Error codes sent to clients in proto.Error.
const (
	ErrCodeBadRequest        = "bad_request"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeNotJoined         = "not_joined"
	ErrCodeAlreadyJoined     = "already_joined"
	ErrCodeRoomFull          = "room_full"
	ErrCodeWrongPhase        = "wrong_phase"
	ErrCodeNotHost           = "not_host"
	ErrCodeSpectator         = "spectator"
	ErrCodeInvalidTarget     = "invalid_target"
	ErrCodeUnknownItem       = "unknown_item"
	ErrCodeInsufficientFunds = "insufficient_funds"
	ErrCodeKicked            = "kicked"
)

var (
	ErrQueueFull      = errors.New("intent queue full")
	ErrHubStopped     = errors.New("hub stopped")
	ErrUnknownSession = errors.New("unknown session")
	errNilIntent      = errors.New("nil intent")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}
