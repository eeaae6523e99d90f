package domain

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidInput = errors.New("invalid input")

	ErrUnreachable = errors.New("source unreachable")
	ErrForbidden   = errors.New("source forbidden")
	ErrNotFound    = errors.New("source not found")
	ErrRateLimited = errors.New("source rate limited")
	ErrUpstream    = errors.New("source upstream error")
	ErrTimeout     = errors.New("timed out")

	ErrModel = errors.New("model call failed")

	ErrPersistence = errors.New("persistence failed")
	ErrTemporary   = errors.New("temporary failure")

	ErrListNotFound = errors.New("list not found")
	ErrItemNotFound = errors.New("item not found")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// UserMessage turns an abort-level pipeline error into a message a person can act on.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case IsKind(err, ErrInvalidInput):
		return "The input could not be used. Check that the text, file or URL is not empty and is well formed."
	case IsKind(err, ErrTimeout):
		return "The request timed out. The site or the model took too long to respond; try again in a moment."
	case IsKind(err, ErrForbidden):
		return "The website blocked automated access. Try copying the page text or taking a screenshot instead."
	case IsKind(err, ErrNotFound):
		return "The page was not found. Check the URL."
	case IsKind(err, ErrRateLimited):
		return "The website is rate limiting requests. Wait a little and try again."
	case IsKind(err, ErrUpstream):
		return "The website is having problems right now. Try again later."
	case IsKind(err, ErrUnreachable):
		return "The website could not be reached. Check the URL and your connection."
	case IsKind(err, ErrModel):
		return "The extraction service is unavailable right now. Try again later."
	case IsKind(err, ErrListNotFound), IsKind(err, ErrItemNotFound):
		return "The requested list or item does not exist."
	case IsKind(err, ErrPersistence):
		return "The items were extracted but could not be saved. Please retry."
	default:
		return "Something went wrong while processing the request."
	}
}
