package engine

import (
	"errors"
	"fmt"
)

// Sentinel causes carried by MutationError.
var (
	ErrSignInRequired = errors.New("please sign in")
	ErrNotAuthor      = errors.New("only the author can delete a post")
)

// MutationErrorCode categorizes mutation failures.
type MutationErrorCode string

const (
	// ErrCodeAuthMissing indicates no bearer token was available.
	ErrCodeAuthMissing MutationErrorCode = "AUTH_MISSING"

	// ErrCodeNotAuthor indicates the viewer tried to delete someone else's post.
	ErrCodeNotAuthor MutationErrorCode = "NOT_AUTHOR"

	// ErrCodeRequestFailed indicates the backend request failed after the
	// local change was applied.
	ErrCodeRequestFailed MutationErrorCode = "REQUEST_FAILED"
)

// MutationError is returned by every failed mutation.
type MutationError struct {
	Code       MutationErrorCode
	Mutation   string // e.g. "toggle_like"
	MutationID string
	PostID     string
	Err        error
}

// Error implements the error interface.
func (e *MutationError) Error() string {
	if e.PostID != "" {
		return fmt.Sprintf("%s: %s (post=%s): %v", e.Code, e.Mutation, e.PostID, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Mutation, e.Err)
}

// Unwrap returns the underlying cause.
func (e *MutationError) Unwrap() error {
	return e.Err
}

func hasCode(err error, code MutationErrorCode) bool {
	var me *MutationError
	if errors.As(err, &me) {
		return me.Code == code
	}
	return false
}

// IsAuthMissing reports whether err rejected a mutation for lack of a token.
func IsAuthMissing(err error) bool {
	return hasCode(err, ErrCodeAuthMissing)
}

// IsNotAuthor reports whether err rejected a delete of someone else's post.
func IsNotAuthor(err error) bool {
	return hasCode(err, ErrCodeNotAuthor)
}

// IsRequestFailed reports whether err is a backend failure after an optimistic change.
func IsRequestFailed(err error) bool {
	return hasCode(err, ErrCodeRequestFailed)
}
