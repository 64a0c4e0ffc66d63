package routing

import (
	"github.com/l0p7/eventdesk/internal/gateway"
)

// ErrorView is the error block a view renders.
type ErrorView struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// ViewState is the {status, data, error} model of one view section.
type ViewState struct {
	Status string     `json:"status"`
	Data   any        `json:"data,omitempty"`
	Error  *ErrorView `json:"error,omitempty"`
}

// Section builds the state of a section that tolerates its own failure:
// errors become an error block instead of failing the whole loader.
func Section(data any, err error, title, fallback string) ViewState {
	if err != nil {
		return ViewState{
			Status: "error",
			Error:  &ErrorView{Title: title, Message: gateway.MessageOf(err, fallback)},
		}
	}
	return ViewState{Status: "success", Data: data}
}

// Fail wraps err into the error view of a specific operation, keeping the
// backend status. Cancellation passes through unchanged.
func Fail(err error, title, fallback string) error {
	if err == nil || gateway.IsCanceled(err) {
		return err
	}
	status := gateway.StatusOf(err)
	if status < 400 || status > 599 {
		status = 500
	}
	return &Error{Status: status, Title: title, Message: gateway.MessageOf(err, fallback), Err: err}
}
