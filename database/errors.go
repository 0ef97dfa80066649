package database

import "errors"

var (
	// ErrNotFound 请求的记录不存在
	ErrNotFound = errors.New("record not found")

	// ErrConflict 记录已存在（如重复注册用户）
	ErrConflict = errors.New("record already exists")
)

// ValidationError reports caller input that can never succeed: an option id
// that does not belong to the poll, or too many selections for a
// single-select poll. It is always recoverable and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
