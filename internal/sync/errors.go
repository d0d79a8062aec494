package sync

import (
	"fmt"
)

type ErrorCode string

const (
	CodeNetworkUnavailable       ErrorCode = "NETWORK_UNAVAILABLE"
	CodeConnectionFailed         ErrorCode = "CONNECTION_FAILED"
	CodeAuthenticationFailed     ErrorCode = "AUTHENTICATION_FAILED"
	CodeIncompatibleVersion      ErrorCode = "INCOMPATIBLE_VERSION"
	CodeTransferFailed           ErrorCode = "TRANSFER_FAILED"
	CodeConflictResolutionFailed ErrorCode = "CONFLICT_RESOLUTION_FAILED"
	CodeInsufficientStorage      ErrorCode = "INSUFFICIENT_STORAGE"
	CodeDeviceNotFound           ErrorCode = "DEVICE_NOT_FOUND"
	CodeCancelled                ErrorCode = "CANCELLED"
	CodeUnknown                  ErrorCode = "UNKNOWN"
)

// SyncError is the closed error set surfaced to callers of the peer sync
// flow.
type SyncError struct {
	Code          ErrorCode `json:"code"`
	Message       string    `json:"message,omitempty"`
	DeviceID      string    `json:"device_id,omitempty"`
	LocalVersion  string    `json:"local_version,omitempty"`
	RemoteVersion string    `json:"remote_version,omitempty"`
	Required      int64     `json:"required,omitempty"`
	Available     int64     `json:"available,omitempty"`
}

func (e *SyncError) Error() string {
	switch e.Code {
	case CodeIncompatibleVersion:
		return fmt.Sprintf("incompatible version: local %s, remote %s", e.LocalVersion, e.RemoteVersion)
	case CodeInsufficientStorage:
		return fmt.Sprintf("insufficient storage: need %d bytes, have %d", e.Required, e.Available)
	case CodeDeviceNotFound:
		return fmt.Sprintf("device not found: %s", e.DeviceID)
	}
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

func NewNetworkUnavailable() *SyncError {
	return &SyncError{Code: CodeNetworkUnavailable}
}

func NewConnectionFailed(message string) *SyncError {
	return &SyncError{Code: CodeConnectionFailed, Message: message}
}

func NewAuthenticationFailed(message string) *SyncError {
	return &SyncError{Code: CodeAuthenticationFailed, Message: message}
}

func NewIncompatibleVersion(localVersion, remoteVersion string) *SyncError {
	return &SyncError{Code: CodeIncompatibleVersion, LocalVersion: localVersion, RemoteVersion: remoteVersion}
}

func NewTransferFailed(message string) *SyncError {
	return &SyncError{Code: CodeTransferFailed, Message: message}
}

func NewConflictResolutionFailed(message string) *SyncError {
	return &SyncError{Code: CodeConflictResolutionFailed, Message: message}
}

func NewInsufficientStorage(required, available int64) *SyncError {
	return &SyncError{Code: CodeInsufficientStorage, Required: required, Available: available}
}

func NewDeviceNotFound(deviceID string) *SyncError {
	return &SyncError{Code: CodeDeviceNotFound, DeviceID: deviceID}
}

func NewCancelled() *SyncError {
	return &SyncError{Code: CodeCancelled}
}

func NewUnknown(message string) *SyncError {
	return &SyncError{Code: CodeUnknown, Message: message}
}
