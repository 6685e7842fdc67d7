/*
Package resp provides helpers for writing HTTP responses.

Errors use a unified JSON structure carrying the business code and message; probes and health
checks write plain text or their own JSON document.
*/
package resp

import (
	"encoding/json"
	"net/http"

	"chatrelay/internal/pkg/errs"
	"chatrelay/internal/pkg/logx"
)

// JSONResponse is the standard JSON envelope returned for coded errors.
type JSONResponse struct {
	// Code is the business error code, see the errs package.
	Code int `json:"code"`

	// Message is the client-friendly status description or error message.
	Message string `json:"message"`
}

// RespondJSON sets the JSON content headers and writes payload with the given status.
func RespondJSON(w http.ResponseWriter, r *http.Request, httpStatus int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")

	response, err := json.Marshal(payload)
	if err != nil {
		logx.Error(
			err,
			"Error encoding JSON response",
			"http_status", httpStatus,
			"request_uri", r.RequestURI,
		)

		http.Error(w, "Error encoding JSON response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(httpStatus)
	w.Write(response)
}

// RespondText writes a plain-text body with the given status.
func RespondText(w http.ResponseWriter, r *http.Request, httpStatus int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(httpStatus)
	w.Write([]byte(body))
}

// RespondError writes customErr as a JSONResponse using the error's HTTP status.
func RespondError(w http.ResponseWriter, r *http.Request, customErr *errs.CustomError) {
	if customErr == nil {
		customErr = errs.NewError(errs.ErrUnknown)
	}

	res := JSONResponse{
		Code:    customErr.Code,
		Message: customErr.Message,
	}
	RespondJSON(w, r, customErr.Status, res)
}
