package server

import (
	"context"
	"errors"
	"net/http"

	"sqlcoach/internal/coach"
	"sqlcoach/internal/llm"
	"sqlcoach/internal/practice"
	"sqlcoach/internal/sandbox"
	"sqlcoach/internal/util"
)

// Error is a failure with an explicit HTTP status. Msg is shown to the user.
type Error struct {
	Code int
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func badRequest(msg string) error {
	return &Error{Code: http.StatusBadRequest, Msg: msg}
}

// Error classes recorded in history.
const (
	classValidation = "validation"
	classNotFound   = "not_found"
	classTooLarge   = "too_large"
	classUpstream   = "upstream"
	classParse      = "parse"
	classTimeout    = "timeout"
	classCanceled   = "canceled"
	classInternal   = "internal"
	classPanic      = "panic"
)

// classify maps an action error to its status code, user-facing message and
// history class. upstream marks actions whose unclassified errors come from
// the LLM.
func classify(err error, upstream bool) (code int, msg, class string) {
	var (
		se  *Error
		sbe *sandbox.Error
		de  *util.DecodeError
		pe  *coach.ParseError
		le  *llm.StatusError
	)

	switch {
	case errors.As(err, &se):
		class = classValidation
		if se.Code == http.StatusNotFound {
			class = classNotFound
		}
		return se.Code, se.Msg, class

	case errors.Is(err, util.ErrBodyTooLarge):
		return http.StatusRequestEntityTooLarge, err.Error(), classTooLarge
	case errors.As(err, &de):
		return http.StatusBadRequest, err.Error(), classValidation

	case errors.Is(err, coach.ErrEmptyQuery),
		errors.Is(err, coach.ErrMissingQueries),
		errors.Is(err, coach.ErrAnalysisMissing),
		errors.Is(err, sandbox.ErrEmptyQuery):
		return http.StatusBadRequest, err.Error(), classValidation

	case errors.Is(err, practice.ErrQuestionNotFound):
		return http.StatusNotFound, err.Error(), classNotFound

	case errors.As(err, &sbe):
		if errors.Is(sbe.Err, sandbox.ErrTimeout) {
			return http.StatusBadRequest, err.Error(), classTimeout
		}
		return http.StatusBadRequest, err.Error(), "sql_" + sbe.Stage

	case errors.As(err, &pe):
		return http.StatusInternalServerError, err.Error(), classParse

	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "request canceled", classCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "upstream request timed out", classTimeout

	case errors.As(err, &le), errors.Is(err, llm.ErrNoAPIKey):
		return http.StatusBadGateway, err.Error(), classUpstream
	}

	if upstream {
		return http.StatusBadGateway, err.Error(), classUpstream
	}
	return http.StatusInternalServerError, "internal error", classInternal
}
