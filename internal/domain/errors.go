package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrVoteNotFound = errors.New("vote not found")

	// Admission rejections: expected outcomes, terminal, never retried.
	ErrDuplicateVote      = errors.New("duplicate vote")
	ErrDailyLimitExceeded = errors.New("daily vote limit exceeded")
	ErrShowLimitExceeded  = errors.New("show vote limit exceeded")
	ErrVotingClosed       = errors.New("voting closed for show")

	// Integrity error: the song exists but does not belong to the show
	// named in the request. Logged loudly, never retried.
	ErrSongShowMismatch = errors.New("setlist song does not belong to show")
)

// TransientError marks an infrastructure failure (serialization conflict,
// deadlock, dropped connection) that the admission service may retry.
type TransientError struct {
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transient: %v", e.Err) }

func (e *TransientError) Unwrap() error { return e.Err }

func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Err: err}
}

func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}
