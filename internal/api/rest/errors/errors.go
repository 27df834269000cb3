package errors

type (
	HandlersFoundNilArgument struct {
		Msg string
	}
	IllegalAmountError struct {
		Amount string
	}
)

func (e *HandlersFoundNilArgument) Error() string {
	return e.Msg
}

func (e *IllegalAmountError) Error() string {
	return "illegal amount " + e.Amount + ", expected a non-negative integer"
}
