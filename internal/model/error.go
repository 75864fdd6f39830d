package model

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error         string   `json:"error"`
	Message       string   `json:"message"`
	MissingFields []string `json:"missingFields,omitempty"`
	Reference     string   `json:"reference,omitempty"`
	CorrelationID string   `json:"correlationId,omitempty"`
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON           = "INVALID_JSON"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeQuantityExceeded      = "QUANTITY_EXCEEDED"
	ErrCodeInvalidQuantity       = "INVALID_QUANTITY"
	ErrCodeLineNotFound          = "LINE_NOT_FOUND"
	ErrCodeProductNotFound       = "PRODUCT_NOT_FOUND"
	ErrCodeIntentCreationFailed  = "INTENT_CREATION_FAILED"
	ErrCodeCardDeclined          = "CARD_DECLINED"
	ErrCodeGatewayError          = "GATEWAY_ERROR"
	ErrCodeOrderCreationFailed   = "ORDER_CREATION_FAILED"
	ErrCodeSucceededUnreconciled = "SUCCEEDED_UNRECONCILED"
	ErrCodeCheckoutInFlight      = "CHECKOUT_IN_FLIGHT"
	ErrCodeOrderNotFound         = "ORDER_NOT_FOUND"
	ErrCodeInvalidTransition     = "INVALID_TRANSITION"
	ErrCodeUnauthorised          = "UNAUTHORIZED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// Domain errors for business logic
type DomainError struct {
	Code    string
	Message string
}

func (e *DomainError) Error() string {
	return e.Message
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// Common domain errors
var (
	ErrValidation            = NewDomainError(ErrCodeValidation, "Shipping details are incomplete or malformed")
	ErrQuantityExceeded      = NewDomainError(ErrCodeQuantityExceeded, "At most 5 units of an item can be in the cart")
	ErrInvalidQuantity       = NewDomainError(ErrCodeInvalidQuantity, "Quantity must be between 1 and 5")
	ErrLineNotFound          = NewDomainError(ErrCodeLineNotFound, "Item is not in the cart")
	ErrProductNotFound       = NewDomainError(ErrCodeProductNotFound, "Product not found")
	ErrIntentCreationFailed  = NewDomainError(ErrCodeIntentCreationFailed, "Could not start the card payment")
	ErrCardDeclined          = NewDomainError(ErrCodeCardDeclined, "The card was declined")
	ErrGatewayError          = NewDomainError(ErrCodeGatewayError, "The payment provider could not be reached")
	ErrOrderCreationFailed   = NewDomainError(ErrCodeOrderCreationFailed, "The order could not be placed")
	ErrSucceededUnreconciled = NewDomainError(ErrCodeSucceededUnreconciled, "Payment received but the order was not recorded")
	ErrCheckoutInFlight      = NewDomainError(ErrCodeCheckoutInFlight, "A checkout is already in progress")
	ErrOrderNotFound         = NewDomainError(ErrCodeOrderNotFound, "Order not found")
	ErrInvalidTransition     = NewDomainError(ErrCodeInvalidTransition, "Status change is not allowed")
	ErrUnauthorised          = NewDomainError(ErrCodeUnauthorised, "Authentication required")
)
