/*
Package errs provides custom error types and application-level error code constants.

These error codes identify specific relay or HTTP failures both inside the server and in the
error events sent to clients.
*/
package errs

// 1xxx: General Request Handling Errors
const (
	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007
)

// 2xxx: Message and Content Errors
const (
	// ErrFileSizeTooLarge indicates that an attached file exceeds the maximum decoded size.
	ErrFileSizeTooLarge = 2202
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000

	// ErrServiceUnavailable indicates that the relay is not accepting new connections,
	// typically because it is shutting down.
	ErrServiceUnavailable = 5003
)
