package notifications

import "errors"

var (
	// ErrPermissionDenied is returned by issuers when the user has not granted
	// permission to show notifications.
	ErrPermissionDenied = errors.New("notification permission denied")

	// ErrIssuanceFailed wraps any failure to create a notification. The ledger
	// records nothing, so the next enter event retries.
	ErrIssuanceFailed = errors.New("notification issuance failed")

	// ErrCancellationFailed wraps any failure to withdraw a notification. The
	// ledger keeps the record, so the next exit event retries.
	ErrCancellationFailed = errors.New("notification cancellation failed")

	// ErrBusy is returned when another operation on the same marker is still running.
	ErrBusy = errors.New("notification operation already in flight")
)
