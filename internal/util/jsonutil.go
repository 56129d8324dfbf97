package util

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrBodyTooLarge is returned when a request body exceeds its cap.
var ErrBodyTooLarge = errors.New("request body too large")

// DecodeError wraps a malformed request body.
type DecodeError struct {
	Err error
}

func (e *DecodeError) Error() string { return "invalid JSON body: " + e.Err.Error() }
func (e *DecodeError) Unwrap() error { return e.Err }

// DecodeJSON decodes a single JSON value from r into v.
//
// The body is capped at max bytes and must contain nothing but whitespace
// after the value. Numbers are kept as json.Number when v holds interface
// values, which avoids lossy float conversions for ids.
func DecodeJSON(r io.Reader, max int64, v any) error {
	lr := &io.LimitedReader{R: r, N: max + 1}
	dec := json.NewDecoder(lr)
	dec.UseNumber()

	if err := dec.Decode(v); err != nil {
		if lr.N <= 0 {
			return ErrBodyTooLarge
		}
		if errors.Is(err, io.EOF) {
			return &DecodeError{Err: errors.New("empty body")}
		}
		return &DecodeError{Err: err}
	}
	// Ensure there is no trailing non-whitespace content.
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		if lr.N <= 0 {
			return ErrBodyTooLarge
		}
		if err == nil {
			return &DecodeError{Err: fmt.Errorf("unexpected trailing JSON content")}
		}
		return &DecodeError{Err: fmt.Errorf("unexpected trailing JSON content: %w", err)}
	}
	if lr.N <= 0 {
		return ErrBodyTooLarge
	}
	return nil
}

// DecodeRequest decodes an HTTP request body with DecodeJSON.
func DecodeRequest(r *http.Request, max int64, v any) error {
	if r.Body == nil {
		return &DecodeError{Err: errors.New("empty body")}
	}
	return DecodeJSON(r.Body, max, v)
}
