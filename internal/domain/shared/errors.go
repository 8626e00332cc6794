package shared

// DomainError is a business rule failure. Code is stable and maps onto an
// HTTP status in the handler layer; Message is shown to API clients.
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Message
}

// Is matches on Code, so errors.Is(err, ErrNotFound) holds for any not-found
// error regardless of its message.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

var (
	ErrNotFound            = NewDomainError("NOT_FOUND", "Resource not found")
	ErrAlreadyExists       = NewDomainError("ALREADY_EXISTS", "Resource already exists")
	ErrInvalidInput        = NewDomainError("INVALID_INPUT", "Invalid input provided")
	ErrInsufficientBalance = NewDomainError("INSUFFICIENT_BALANCE", "Postage balance is too low for this campaign")
	ErrDataIntegrity       = NewDomainError("DATA_INTEGRITY", "Data integrity violation")
)
