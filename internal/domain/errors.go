package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeviceUnavailable  = errors.New("audio capture device unavailable")
	ErrSessionExpired     = errors.New("session expired")
	ErrNetworkUnreachable = errors.New("backend unreachable")

	ErrAlreadyRecording = errors.New("a recording is already in progress")
	ErrUploadInProgress = errors.New("an upload is still being processed")
	ErrNotRecording     = errors.New("no active recording")
	ErrNoSession        = errors.New("no signed-in session")
	ErrInvalidPhone     = errors.New("invalid phone number")
	ErrInvalidOTP       = errors.New("verification code must be 6 digits")
)

// BackendRejectedError is returned when the backend answered with a non-success status.
type BackendRejectedError struct {
	StatusCode int
	Message    string
}

func (e *BackendRejectedError) Error() string {
	return fmt.Sprintf("backend rejected request (HTTP %d): %s", e.StatusCode, e.Message)
}

// FailureKind classifies failures surfaced to the user.
type FailureKind string

const (
	FailureDeviceUnavailable  FailureKind = "device_unavailable"
	FailureSessionExpired     FailureKind = "session_expired"
	FailureNetworkUnreachable FailureKind = "network_unreachable"
	FailureBackendRejected    FailureKind = "backend_rejected"
)

const (
	MessageDeviceUnavailable  = "Microphone access denied. Please allow permissions."
	MessageSessionExpired     = "Session expired. Please log in again."
	MessageNetworkUnreachable = "Could not connect to backend."
	messageBackendFallback    = "The backend rejected the request."
)

// Failure is the user-facing reason carried by the Failed phase.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
}

// FailureFrom maps any pipeline error onto the four user-facing failure kinds.
// Errors outside the taxonomy are treated as connectivity failures.
func FailureFrom(err error) Failure {
	var rejected *BackendRejectedError
	switch {
	case errors.As(err, &rejected):
		message := strings.TrimSpace(rejected.Message)
		if message == "" {
			message = messageBackendFallback
		}
		return Failure{Kind: FailureBackendRejected, Message: message}
	case errors.Is(err, ErrSessionExpired):
		return Failure{Kind: FailureSessionExpired, Message: MessageSessionExpired}
	case errors.Is(err, ErrDeviceUnavailable):
		return Failure{Kind: FailureDeviceUnavailable, Message: MessageDeviceUnavailable}
	default:
		return Failure{Kind: FailureNetworkUnreachable, Message: MessageNetworkUnreachable}
	}
}
