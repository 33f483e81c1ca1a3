package dataset

import "fmt"

// DataError reports malformed, insufficient, or missing input series/columns.
// It is always recoverable by supplying better data.
type DataError struct {
	Code    string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns underlying error.
func (e *DataError) Unwrap() error {
	return e.Err
}

func newDataError(code, format string, a ...interface{}) *DataError {
	return &DataError{Code: code, Message: fmt.Sprintf(format, a...)}
}

const (
	ErrCodeMissingColumn    = "ERR_MISSING_COLUMN"
	ErrCodeNoFeatures       = "ERR_NO_FEATURES"
	ErrCodeInsufficientData = "ERR_INSUFFICIENT_DATA"
	ErrCodeScalerNotFitted  = "ERR_SCALER_NOT_FITTED"
	ErrCodeShape            = "ERR_SHAPE"
)
