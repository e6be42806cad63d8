// Package apierr converts domain errors into echo HTTP errors.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/vitals/internal/domain/access"
)

// Body is the JSON error payload for 4xx responses.
type Body struct {
	Message string            `json:"message"`
	Field   string            `json:"field,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// From maps err onto a status code. Unrecognised errors are logged on the
// request logger and hidden behind a generic 500.
func From(c echo.Context, err error) error {
	var (
		he    *echo.HTTPError
		verrs access.ValidationErrors
		verr  *access.ValidationError
		ferr  *access.InvalidFilterError
	)
	switch {
	case err == nil:
		return nil
	case errors.As(err, &he):
		return he
	case errors.As(err, &verrs):
		return echo.NewHTTPError(http.StatusBadRequest, Body{Message: "validation failed", Errors: verrs.Fields()})
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, Body{Message: "validation failed", Errors: map[string]string{verr.Field: verr.Message}})
	case errors.As(err, &ferr):
		return echo.NewHTTPError(http.StatusBadRequest, Body{Message: ferr.Error(), Field: ferr.Field})
	case errors.Is(err, access.ErrUnauthenticated):
		return echo.NewHTTPError(http.StatusUnauthorized, Body{Message: err.Error()})
	case errors.Is(err, access.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, Body{Message: err.Error()})
	case errors.Is(err, access.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, Body{Message: err.Error()})
	case errors.Is(err, access.ErrMalformedTarget):
		zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("authorization target could not be resolved")
		return echo.NewHTTPError(http.StatusForbidden, Body{Message: "forbidden"})
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Msg("unhandled error")
	return echo.NewHTTPError(http.StatusInternalServerError, Body{Message: "internal server error"})
}

// BadRequest is used for malformed path parameters and bodies.
func BadRequest(msg string) error {
	return echo.NewHTTPError(http.StatusBadRequest, Body{Message: msg})
}

// Bind decodes the request body into v. An oversized body is 413. A value of
// the wrong type or a malformed identifier is a 400 naming the field; any
// other decode failure is a plain 400.
func Bind(c echo.Context, v interface{}) error {
	err := c.Bind(v)
	if err == nil {
		return nil
	}
	var (
		mbe  *http.MaxBytesError
		verr *access.ValidationError
		ute  *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &mbe):
		return echo.NewHTTPError(http.StatusRequestEntityTooLarge, Body{Message: "request body too large"})
	case errors.As(err, &verr):
		return From(c, verr)
	case errors.As(err, &ute) && ute.Field != "":
		return From(c, &access.ValidationError{Field: ute.Field, Message: expected(ute.Type)})
	}
	return BadRequest("invalid request body")
}

var jsonUnmarshaler = reflect.TypeOf((*json.Unmarshaler)(nil)).Elem()

func expected(t reflect.Type) string {
	if t == nil {
		return "has an invalid value"
	}
	if reflect.PointerTo(t).Implements(jsonUnmarshaler) {
		return "has an invalid format"
	}
	switch t.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "must be an integer"
	case reflect.Float32, reflect.Float64:
		return "must be a number"
	case reflect.String:
		return "must be a string"
	case reflect.Bool:
		return "must be a boolean"
	case reflect.Map, reflect.Struct:
		return "must be an object"
	case reflect.Slice, reflect.Array:
		return "must be an array"
	}
	return "has an invalid value"
}
