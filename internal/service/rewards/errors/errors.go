package errors

import (
	"fmt"
)

type (
	AlreadyRegisteredError struct {
		Handle string
	}
	UnregisteredUserError struct {
		Handle string
	}
	AlreadyClaimedError struct {
		Handle string
		Kind   string
	}
	ClaimInProgressError struct {
		Handle string
	}
	InvalidHandleError struct {
		Handle string
	}
	NotAuthorizedError struct {
		Principal string
	}
	MintFailedError struct {
		Err error
	}
	ServiceFoundNilArgument struct {
		Msg string
	}
)

func (e *AlreadyRegisteredError) Error() string {
	return fmt.Sprintf("user %s is already registered", e.Handle)
}

func (e *UnregisteredUserError) Error() string {
	return fmt.Sprintf("user %s is not registered", e.Handle)
}

func (e *AlreadyClaimedError) Error() string {
	return fmt.Sprintf("%s reward for user %s was already claimed within the current window", e.Kind, e.Handle)
}

func (e *ClaimInProgressError) Error() string {
	return fmt.Sprintf("another claim for user %s is still being processed", e.Handle)
}

func (e *InvalidHandleError) Error() string {
	return fmt.Sprintf("handle %s does not match the platform identity format", e.Handle)
}

func (e *NotAuthorizedError) Error() string {
	return fmt.Sprintf("principal ID %s does not own this user record", e.Principal)
}

func (e *MintFailedError) Error() string {
	return fmt.Sprintf("%s: reward mint failed, streak credit is kept", e.Err.Error())
}

func (e *MintFailedError) Unwrap() error {
	return e.Err
}

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}
