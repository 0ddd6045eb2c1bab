package middleware

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/opdflow/pkg/flowmodel"
)

// ErrorHandler renders every error as {"error":{"code","message"}}. Errors
// that already carry a *flowmodel.APIError keep its code; others get one
// derived from the HTTP status.
func ErrorHandler(logger zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status, body := ErrorBody(err)
		if status >= http.StatusInternalServerError {
			logger.Error().Err(err).
				Str("request_id", fmt.Sprintf("%v", c.Get("request_id"))).
				Str("path", c.Request().URL.Path).
				Msg("request failed")
		}

		var werr error
		if c.Request().Method == http.MethodHead {
			werr = c.NoContent(status)
		} else {
			werr = c.JSON(status, flowmodel.ErrorBody{Error: body})
		}
		if werr != nil {
			logger.Error().Err(werr).Msg("write error response")
		}
	}
}

// ErrorBody returns the status and API error for err.
func ErrorBody(err error) (int, *flowmodel.APIError) {
	var he *echo.HTTPError
	if errors.As(err, &he) {
		switch msg := he.Message.(type) {
		case *flowmodel.APIError:
			return he.Code, msg
		case string:
			return he.Code, &flowmodel.APIError{Code: CodeForStatus(he.Code), Message: msg}
		default:
			return he.Code, &flowmodel.APIError{Code: CodeForStatus(he.Code), Message: http.StatusText(he.Code)}
		}
	}

	var apiErr *flowmodel.APIError
	if errors.As(err, &apiErr) && apiErr.Status != 0 {
		return apiErr.Status, apiErr
	}
	return http.StatusInternalServerError, &flowmodel.APIError{Code: flowmodel.CodeInternal, Message: "internal server error"}
}

// CodeForStatus maps a bare HTTP status onto an API error code.
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest, http.StatusUnprocessableEntity, http.StatusRequestEntityTooLarge:
		return flowmodel.CodeValidation
	case http.StatusUnauthorized:
		return flowmodel.CodeUnauthorized
	case http.StatusForbidden:
		return flowmodel.CodeForbidden
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return flowmodel.CodeNotFound
	case http.StatusConflict:
		return flowmodel.CodeStageConflict
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		return flowmodel.CodeRequestFailed
	}
	if status >= http.StatusInternalServerError {
		return flowmodel.CodeInternal
	}
	return flowmodel.CodeRequestFailed
}
