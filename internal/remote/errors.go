package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// StatusError is a non-2xx response from the store.
type StatusError struct {
	Op     string
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %d %s: %s", e.Op, e.Status, http.StatusText(e.Status), e.Detail)
	}
	return fmt.Sprintf("%s: %d %s", e.Op, e.Status, http.StatusText(e.Status))
}

// TransportError is a failure to reach the store at all.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// DecodeError is a push message that could not be parsed. The connection
// itself is still usable.
type DecodeError struct {
	Raw []byte
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode live message: %v", e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status
	}
	return 0
}

// IsTransport reports whether err is a transport failure.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// newStatusError builds a StatusError, lifting the store's {"detail": ...}
// message when present.
func newStatusError(op string, status int, body []byte) *StatusError {
	var payload struct {
		Detail any `json:"detail"`
	}
	detail := ""
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != nil {
		if s, ok := payload.Detail.(string); ok {
			detail = s
		} else {
			b, _ := json.Marshal(payload.Detail)
			detail = string(b)
		}
	} else {
		detail = strings.TrimSpace(string(body))
	}
	return &StatusError{Op: op, Status: status, Detail: detail}
}
