package payment

// Code is the respCode carried in every Response.
type Code string

const (
	CodeSuccess        Code = "00"
	CodeValidation     Code = "01"
	CodeTokenExists    Code = "02"
	CodeJSONProcessing Code = "98"
	CodeSystem         Code = "99"
)

// Validation summaries shown to API callers.
const (
	MsgRealAmountExceedsDebit = "The real amount must be less than or equal to the debit amount."
	MsgInvalidPromotionCode   = "Invalid promotion code."
	MsgValidation             = "Validation error occurred."
)

// Name returns the taxonomy name, e.g. TOKEN_EXISTS_ERROR.
func (c Code) Name() string {
	switch c {
	case CodeSuccess:
		return "SUCCESS"
	case CodeValidation:
		return "VALIDATION_ERROR"
	case CodeTokenExists:
		return "TOKEN_EXISTS_ERROR"
	case CodeJSONProcessing:
		return "JSON_PROCESSING_ERROR"
	case CodeSystem:
		return "SYSTEM_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Message returns the default status text for the code.
func (c Code) Message() string {
	switch c {
	case CodeSuccess:
		return "Success"
	case CodeValidation:
		return "Validation Error"
	case CodeTokenExists:
		return "TokenKey already exists"
	case CodeJSONProcessing:
		return "JSON processing error"
	default:
		return "System Error"
	}
}
