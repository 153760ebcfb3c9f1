package formula

import (
	"github.com/vogtb/sheetd/packages/cell"
)

// ErrorCode represents standard spreadsheet error codes following
// Excel conventions
type ErrorCode uint8

const (
	ErrorCodeNull     ErrorCode = 1 // #NULL! - no cells in common between ranges
	ErrorCodeDiv0     ErrorCode = 2 // #DIV/0! - division by zero
	ErrorCodeValue    ErrorCode = 3 // #VALUE! - wrong type of argument or operand
	ErrorCodeRef      ErrorCode = 4 // #REF! - invalid cell reference
	ErrorCodeName     ErrorCode = 5 // #NAME? - unrecognized function name
	ErrorCodeNum      ErrorCode = 6 // #NUM! - number too large or small to be represented
	ErrorCodeNA       ErrorCode = 7 // #N/A - not enough arguments for function
	ErrorCodeOther    ErrorCode = 8 // #ERROR! - all other errors
	ErrorCodeCircular ErrorCode = 9 // #CIRCULAR! - cell depends on itself
)

// ErrorMapper maps error code numbers to their string representations
var ErrorMapper = map[ErrorCode]string{
	ErrorCodeNull:     "#NULL!",
	ErrorCodeDiv0:     "#DIV/0!",
	ErrorCodeValue:    "#VALUE!",
	ErrorCodeRef:      "#REF!",
	ErrorCodeName:     "#NAME?",
	ErrorCodeNum:      "#NUM!",
	ErrorCodeNA:       "#N/A",
	ErrorCodeOther:    "#ERROR!",
	ErrorCodeCircular: "#CIRCULAR!",
}

// SpreadsheetError preserves error code for display in cells
type SpreadsheetError struct {
	ErrorCode ErrorCode
	Message   string

	// verbatim marks errors read back from a cell; their message already
	// carries a code and is stored again unchanged
	verbatim bool
}

func (e *SpreadsheetError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return ErrorMapper[e.ErrorCode]
}

// Value converts the error into a storable cell error. the code prefix is
// kept so that clients can tell error kinds apart.
func (e *SpreadsheetError) Value() cell.Value {
	if e.verbatim {
		return cell.Error(e.Message)
	}
	code := ErrorMapper[e.ErrorCode]
	if e.Message == "" || e.Message == code {
		return cell.Error(code)
	}
	return cell.Error(code + " " + e.Message)
}

func NewSpreadsheetError(code ErrorCode, message string) *SpreadsheetError {
	if message == "" {
		message = ErrorMapper[code]
	}
	return &SpreadsheetError{
		ErrorCode: code,
		Message:   message,
	}
}

// newStoredError wraps an error value read from a cell
func newStoredError(message string) *SpreadsheetError {
	return &SpreadsheetError{ErrorCode: ErrorCodeOther, Message: message, verbatim: true}
}

// checkForError returns the error if value is a *SpreadsheetError, nil otherwise
func checkForError(value Primitive) *SpreadsheetError {
	if err, ok := value.(*SpreadsheetError); ok {
		return err
	}
	return nil
}
