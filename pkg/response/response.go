package response

import (
	"errors"

	"github.com/fatflowers/teller/pkg/errs"
)

type APIResponseCode int

const (
	APIResponseCodeOK         APIResponseCode = 0
	APIResponseCodeBadRequest APIResponseCode = 40000
	APIResponseCodeNotFound   APIResponseCode = 40400
	APIResponseCodeConflict   APIResponseCode = 40900
	APIResponseCodeError      APIResponseCode = 50000
)

var codeToMsg = map[APIResponseCode]string{
	APIResponseCodeOK:         "ok",
	APIResponseCodeBadRequest: "bad request",
	APIResponseCodeNotFound:   "not found",
	APIResponseCodeConflict:   "state conflict",
	APIResponseCodeError:      "unexpected error",
}

// APIResponse is the generic response envelope used by HTTP APIs.
// Use OKT / ErrorT helpers to construct instances.
type APIResponse[T any] struct {
	Code    APIResponseCode `json:"code"`
	Message string          `json:"message"`
	Data    T               `json:"data"`
}

// OKT returns a successful response with data.
func OKT[T any](data T) *APIResponse[T] {
	return &APIResponse[T]{Code: APIResponseCodeOK, Message: codeToMsg[APIResponseCodeOK], Data: data}
}

// ErrorT returns an error response with message and optional data.
func ErrorT[T any](code APIResponseCode, data T) *APIResponse[T] {
	return &APIResponse[T]{Code: code, Message: codeToMsg[code], Data: data}
}

// CodeFor maps the engine error taxonomy onto response codes. Gateway
// failures surface as plain errors; duplicate events are not errors and
// should be handled before reaching here.
func CodeFor(err error) APIResponseCode {
	switch {
	case err == nil:
		return APIResponseCodeOK
	case errors.Is(err, errs.ErrValidation):
		return APIResponseCodeBadRequest
	case errors.Is(err, errs.ErrNotFound):
		return APIResponseCodeNotFound
	case errors.Is(err, errs.ErrStateConflict):
		return APIResponseCodeConflict
	default:
		return APIResponseCodeError
	}
}
