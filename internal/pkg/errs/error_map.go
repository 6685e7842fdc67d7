package errs

import "net/http"

// errorMap stores the CustomError template for every application error code.
// Messages containing a verb are formatted with the details passed to NewError.
var errorMap = map[int]CustomError{
	// 1xxx: General Request Handling Errors
	ErrRateLimitExceeded: {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},

	// 2xxx: Message and Content Errors
	ErrFileSizeTooLarge: {Code: ErrFileSizeTooLarge, Message: "File size exceeds the %dMB limit"},

	// 5xxx: Internal System Errors
	ErrUnknown:            {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
	ErrServiceUnavailable: {Code: ErrServiceUnavailable, Message: "Chat server is not accepting connections.", Status: http.StatusServiceUnavailable},
}
