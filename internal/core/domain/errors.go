package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business domain error with a structured error code.
type DomainError struct {
	Code    string // Error code (e.g., "MV-FMT-4000")
	Message string // Human-readable message
	Details string // Optional additional details
	Cause   error  // Underlying error (if any)
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support for error comparison.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new DomainError with the given code and message.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: details,
		Cause:   e.Cause,
	}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{
		Code:    e.Code,
		Message: e.Message,
		Details: e.Details,
		Cause:   cause,
	}
}

// IsDomainError checks if an error is a DomainError with the given code.
// If code is empty, it only checks if the error is a DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if errors.As(err, &de) {
		if code == "" {
			return true
		}
		return de.Code == code
	}
	return false
}

// GetErrorCode extracts the error code from an error if it's a DomainError.
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// ============================================================================
// Format Errors (FMT)
//
// Raised before any decryption or write happens. Fatal for the snapshot,
// never retried.
// ============================================================================

var (
	// ErrUnrecognizedFormat indicates the buffer is neither a JSON envelope
	// nor an OSNP container.
	ErrUnrecognizedFormat = NewDomainError("MV-FMT-4000", "unrecognized snapshot container format")

	// ErrTruncatedEnvelope indicates the buffer ends before the declared layout.
	ErrTruncatedEnvelope = NewDomainError("MV-FMT-4001", "truncated envelope buffer")

	// ErrBadEnvelopeHeader indicates the container header failed to decode.
	ErrBadEnvelopeHeader = NewDomainError("MV-FMT-4002", "undecodable envelope header")

	// ErrBadEnvelopeField indicates a malformed envelope field (bad base64,
	// wrong nonce or tag length).
	ErrBadEnvelopeField = NewDomainError("MV-FMT-4003", "invalid envelope field")
)

// ============================================================================
// Crypto Errors (CRYP)
//
// Fatal for the snapshot, never retried, must never yield partial plaintext.
// ============================================================================

var (
	// ErrBadPrivateKey indicates the PEM private key could not be parsed.
	ErrBadPrivateKey = NewDomainError("MV-CRYP-4010", "invalid private key")

	// ErrKeyUnwrap indicates the asymmetric unwrap of the content key failed.
	ErrKeyUnwrap = NewDomainError("MV-CRYP-4011", "content key unwrap failed")

	// ErrAuthFailed indicates authenticated decryption failed (tag mismatch,
	// wrong key or corrupted ciphertext).
	ErrAuthFailed = NewDomainError("MV-CRYP-4012", "authenticated decryption failed")

	// ErrBadCompressedStream indicates the decrypted payload declared gzip but
	// could not be inflated.
	ErrBadCompressedStream = NewDomainError("MV-CRYP-4013", "malformed compressed stream")

	// ErrPayloadDecode indicates the decrypted payload is neither JSON nor a
	// decodable binary record structure.
	ErrPayloadDecode = NewDomainError("MV-CRYP-4014", "payload decode failed")
)

// ============================================================================
// Storage Errors (STOR)
// ============================================================================

var (
	// ErrMetadataNotFound indicates no metadata row exists for the snapshot.
	ErrMetadataNotFound = NewDomainError("MV-STOR-4040", "snapshot metadata not found")

	// ErrStorageContention indicates a transient transaction failure.
	// Retryable per chunk up to the configured retry ceiling.
	ErrStorageContention = NewDomainError("MV-STOR-5001", "storage transaction contention")

	// ErrStorageClosed indicates the record store has been closed.
	ErrStorageClosed = NewDomainError("MV-STOR-5002", "record store closed")

	// ErrChunkFailed indicates a chunk exhausted its write retries.
	ErrChunkFailed = NewDomainError("MV-STOR-5003", "chunk write failed after retries")
)

// ============================================================================
// Orchestration Errors (ORCH)
// ============================================================================

var (
	// ErrOrchestration indicates an unexpected failure during staging or
	// dispatch. Recorded into snapshot metadata before surfacing.
	ErrOrchestration = NewDomainError("MV-ORCH-5000", "orchestration failure")

	// ErrStagingCorrupted indicates a staged snapshot failed its integrity
	// check when loaded back.
	ErrStagingCorrupted = NewDomainError("MV-ORCH-5001", "staged snapshot corrupted")

	// ErrSourceUnavailable indicates the encrypted blob could not be obtained
	// from its byte source.
	ErrSourceUnavailable = NewDomainError("MV-ORCH-5002", "snapshot source unavailable")
)
