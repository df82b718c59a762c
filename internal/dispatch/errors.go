package dispatch

import "errors"

var (
	// ErrSequenceRegression indicates a reply numbered above anything issued.
	ErrSequenceRegression = errors.New("dispatch: reply sequence exceeds latest issued")

	// ErrDuplicateReply indicates a second reply for an already settled request.
	ErrDuplicateReply = errors.New("dispatch: duplicate reply for settled request")

	// ErrRequestFailed wraps the failure of the newest request.
	ErrRequestFailed = errors.New("dispatch: request failed")
)
