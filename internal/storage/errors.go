package storage

import (
	"errors"
	"fmt"
	"strings"
)

// StatusError is a non-2xx answer from the object store.
type StatusError struct {
	Method     string
	Key        string
	StatusCode int
	Code       string
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("storage: %s %s: http %d", e.Method, e.Key, e.StatusCode)
	if e.Code != "" {
		msg += " " + e.Code
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// PublishError reports that both the create and the overwrite attempt failed.
type PublishError struct {
	Key       string
	Create    error
	Overwrite error
}

func (e *PublishError) Error() string {
	return fmt.Sprintf("storage: publish %s failed: create: %v; overwrite: %v", e.Key, e.Create, e.Overwrite)
}

func (e *PublishError) Unwrap() []error {
	return []error{e.Create, e.Overwrite}
}

// StatusCodes returns the HTTP status of each attempt, 0 when the attempt
// never got a response.
func (e *PublishError) StatusCodes() []int {
	return []int{statusOf(e.Create), statusOf(e.Overwrite)}
}

func statusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.StatusCode
	}
	return 0
}

const maxErrorBody = 512

func excerpt(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > maxErrorBody {
		s = s[:maxErrorBody] + "..."
	}
	return s
}
