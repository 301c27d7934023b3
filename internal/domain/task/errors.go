package task

import "errors"

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrInvalidTransition      = errors.New("invalid task transition")
	ErrAlreadyAccepted        = errors.New("task already accepted by another runner")
	ErrNotTaskOwner           = errors.New("user does not own this task")
	ErrSelfAccept             = errors.New("client cannot accept own task")
	ErrCancelAcceptedDisabled = errors.New("cancelling an accepted task is disabled")
)
