package admin

import "errors"

var (
	// ErrForbidden is returned when the session is not an admin session.
	ErrForbidden = errors.New("admin access required")

	// ErrBusy is returned when the same operation is already running.
	ErrBusy = errors.New("operation already in progress")

	// ErrResetNotConfirmed is returned by ConfirmReset when the reset was
	// not armed first.
	ErrResetNotConfirmed = errors.New("reset not confirmed")

	// ErrUnsupportedType is wrapped by the UploadError for files outside the
	// allow-list.
	ErrUnsupportedType = errors.New("unsupported file type")
)

const (
	uploadFailedMessage = "Upload failed. Check backend."
	resetFailedMessage  = "Reset failed. Check backend."
	resetDoneMessage    = "Knowledge base has been completely reset."
)

// UploadError is a failed upload. Message is safe to show to the user.
type UploadError struct {
	Message string
	Err     error
}

func (e *UploadError) Error() string { return e.Message }
func (e *UploadError) Unwrap() error { return e.Err }

// ResetError is a failed reset. Message is safe to show to the user.
type ResetError struct {
	Message string
	Err     error
}

func (e *ResetError) Error() string { return e.Message }
func (e *ResetError) Unwrap() error { return e.Err }
