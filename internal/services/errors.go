package services

import (
	"encoding/json"
	"errors"
	"net/http"
)

// DomainError is a stable, machine-readable failure raised by core
// operations. Status is the HTTP status the transport maps it to; Code is
// the contract identifier callers switch on.
type DomainError struct {
	Status  int    `json:"-"`
	Code    string `json:"error"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Code + ": " + e.Message
}

// NewDomainError creates a DomainError with an explicit status
func NewDomainError(status int, code, message string) *DomainError {
	return &DomainError{Status: status, Code: code, Message: message}
}

// ValidationError rejects bad input before any mutation
func ValidationError(code, message string) *DomainError {
	return &DomainError{Status: http.StatusBadRequest, Code: code, Message: message}
}

// NotFoundError aborts the transaction with no side effects
func NotFoundError(code, message string) *DomainError {
	return &DomainError{Status: http.StatusNotFound, Code: code, Message: message}
}

// ConflictError signals a uniqueness violation
func ConflictError(code, message string) *DomainError {
	return &DomainError{Status: http.StatusConflict, Code: code, Message: message}
}

// SystemError is an internal fault; never retried by the core
func SystemError(code, message string) *DomainError {
	return &DomainError{Status: http.StatusInternalServerError, Code: code, Message: message}
}

// SendDomainError writes err as JSON. Storage-layer details never leak; any
// non-domain error becomes a generic system fault.
func SendDomainError(w http.ResponseWriter, err error) {
	var domainErr *DomainError
	if !errors.As(err, &domainErr) {
		domainErr = SystemError("internal_error", "Internal server error")
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(domainErr.Status)
	json.NewEncoder(w).Encode(domainErr)
}
