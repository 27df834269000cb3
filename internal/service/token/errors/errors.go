package errors

import (
	"fmt"
)

type (
	InsufficientBalanceError struct {
		Principal string
	}
	InsufficientAllowanceError struct {
		Owner   string
		Spender string
	}
	UnauthorizedError struct {
		Principal string
	}
	ServiceFoundNilArgument struct {
		Msg string
	}
)

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance for %s", e.Principal)
}

func (e *InsufficientAllowanceError) Error() string {
	return fmt.Sprintf("insufficient allowance granted by %s to %s", e.Owner, e.Spender)
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("unauthorized principal ID %s", e.Principal)
}

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}
