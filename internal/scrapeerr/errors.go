// internal/scrapeerr/errors.go
package scrapeerr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"

	"github.com/law-makers/planscrape/internal/retry"
)

// Tag is one entry of the closed scrape error taxonomy.
type Tag string

const (
	FetchFail     Tag = "FETCH_FAIL"
	GetError      Tag = "GET_ERROR"
	InvalidFormat Tag = "INVALID_FORMAT"
	NoData        Tag = "NO_DATA"
	NoDetail      Tag = "NO_DETAIL"
	OtherError    Tag = "OTHER_ERROR"
	Empty         Tag = "EMPTY"
	NoUID         Tag = "NO_UID"
)

var messages = map[Tag]string{
	FetchFail:     "could not fetch the page",
	GetError:      "unexpected error while fetching",
	InvalidFormat: "page does not hold a valid application record",
	NoData:        "no data block found on the page",
	NoDetail:      "data block found but required fields are missing",
	OtherError:    "unexpected error while gathering",
	Empty:         "no page could be retrieved",
	NoUID:         "record has no uid",
}

// Error wraps a tag with context and the underlying cause
type Error struct {
	Tag        Tag
	Message    string
	Underlying error
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("%s: %s: %v", e.Tag, e.Message, e.Underlying)
	}
	return fmt.Sprintf("%s: %s", e.Tag, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Underlying
}

// Is matches another *Error by tag
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Tag == t.Tag
	}
	return false
}

// New creates an Error with the default message for tag
func New(tag Tag, err error) *Error {
	return &Error{Tag: tag, Message: messages[tag], Underlying: err}
}

// Newf creates an Error with a custom message
func Newf(tag Tag, format string, args ...interface{}) *Error {
	return &Error{Tag: tag, Message: fmt.Sprintf(format, args...)}
}

// Sentinels for errors.Is checks.
var (
	ErrFetchFail     = &Error{Tag: FetchFail}
	ErrGetError      = &Error{Tag: GetError}
	ErrInvalidFormat = &Error{Tag: InvalidFormat}
	ErrNoData        = &Error{Tag: NoData}
	ErrNoDetail      = &Error{Tag: NoDetail}
	ErrOtherError    = &Error{Tag: OtherError}
	ErrEmpty         = &Error{Tag: Empty}
	ErrNoUID         = &Error{Tag: NoUID}
)

// TagOf returns the tag carried by err, classifying untagged errors.
func TagOf(err error) Tag {
	if err == nil {
		return ""
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Tag
	}
	return Classify(err).Tag
}

// Classify converts an arbitrary error from the fetch path into a tagged one.
// Network and HTTP status failures become FETCH_FAIL; anything else GET_ERROR.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var se *Error
	if errors.As(err, &se) {
		return se
	}
	if IsNetwork(err) {
		return New(FetchFail, err)
	}
	return New(GetError, err)
}

// IsNetwork reports whether err came from the transport or an HTTP status.
func IsNetwork(err error) bool {
	var sc retry.StatusCoder
	if errors.As(err, &sc) {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// Message renders err for a scrape_error envelope field.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return Classify(err).Error()
}
