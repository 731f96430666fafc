package backend

import (
	"io"
	"net/http"
	"strings"

	"predict-console/internal/util"
)

// Kind classifies why a backend call did not produce a result.
type Kind string

const (
	// KindValidation means the input was rejected before any network call.
	KindValidation Kind = "validation"
	// KindHTTP means the backend answered with a non-2xx status.
	KindHTTP Kind = "http"
	// KindTransport means the request never produced a response.
	KindTransport Kind = "transport"
	// KindDecode means a 2xx response body could not be decoded.
	KindDecode Kind = "decode"
)

const (
	// MsgTransport is shown when the backend cannot be reached.
	MsgTransport = "Failed to reach the prediction service."
	// MsgDecode is shown when a successful response is not the expected JSON.
	MsgDecode = "Invalid response from the prediction service."

	maxErrorBody = 1024 * 1024
)

// Error is the failure outcome of every Client call.
//
// Message is user-facing text. Body holds the raw response body for KindHTTP.
type Error struct {
	Kind       Kind
	Status     int
	StatusText string
	Message    string
	Body       string
	Err        error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ParseBackendError turns a non-2xx response into an *Error.
//
// A JSON body with a string "detail" supplies the message. A non-string detail
// (e.g. a validation error list) is rendered as compact JSON. A body that is not
// JSON, or has no usable detail, yields fallback. The body is always consumed.
func ParseBackendError(resp *http.Response, fallback string) *Error {
	e := &Error{
		Kind:       KindHTTP,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Message:    fallback,
	}

	body, err := readLimit(resp.Body, maxErrorBody)
	if err != nil {
		e.Err = err
		return e
	}
	e.Body = string(body)

	m, err := util.DecodeJSONMap(body)
	if err != nil {
		return e
	}
	if detail := util.DisplayText(m["detail"]); detail != "" {
		e.Message = detail
	}
	return e
}

func transportError(err error) *Error {
	return &Error{Kind: KindTransport, Message: MsgTransport, Err: err}
}

func decodeError(resp *http.Response, err error) *Error {
	return &Error{
		Kind:       KindDecode,
		Status:     resp.StatusCode,
		StatusText: statusText(resp),
		Message:    MsgDecode,
		Err:        err,
	}
}

// statusText mirrors what a browser reports as Response.statusText.
func statusText(resp *http.Response) string {
	if resp.Status != "" {
		// "404 Not Found" -> "Not Found"
		if _, text, ok := strings.Cut(resp.Status, " "); ok {
			return text
		}
	}
	return http.StatusText(resp.StatusCode)
}

func readLimit(r io.Reader, max int64) ([]byte, error) {
	b, err := io.ReadAll(io.LimitReader(r, max))
	if err != nil {
		return nil, err
	}
	return b, nil
}
