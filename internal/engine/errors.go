package engine

import (
	"fmt"
	"net/http"
)

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func notFound(message string) *DomainError {
	return domainError(http.StatusNotFound, "NOT_FOUND", message, nil)
}

func alreadySubmitted(taskID string) *DomainError {
	return domainError(http.StatusConflict, "ALREADY_SUBMITTED", "task already has a pending submission", map[string]string{"taskId": taskID})
}

func insufficientFunds(balance, cost int64) *DomainError {
	return domainError(http.StatusConflict, "INSUFFICIENT_FUNDS", "balance does not cover the cost", map[string]int64{"balance": balance, "cost": cost})
}

func channelUnavailable() *DomainError {
	return domainError(http.StatusServiceUnavailable, "CHANNEL_UNAVAILABLE", "realtime store is not reachable", nil)
}

func validationError(message string) *DomainError {
	return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", message, nil)
}
