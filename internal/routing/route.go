// Package routing binds routes to loaders, which prepare view data on GET, and
// actions, which handle form submissions and answer with a redirect.
package routing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Request is what loaders and actions see of an HTTP request.
type Request struct {
	Method string
	Path   string
	Params map[string]string
	Query  url.Values
	// Form is the flattened submission of an action. Nil for loaders.
	Form map[string]string
	HTTP *http.Request
}

// Param returns the named route parameter.
func (r Request) Param(name string) string {
	return r.Params[name]
}

// LoaderFunc prepares the data a view renders from.
type LoaderFunc func(ctx context.Context, req Request) (any, error)

// ActionFunc handles a submission and returns where to navigate next.
// Relative targets resolve against the route path.
type ActionFunc func(ctx context.Context, req Request) (string, error)

// Route associates a chi path pattern with its bindings.
type Route struct {
	Path   string
	Loader LoaderFunc
	Action ActionFunc
	// ActionMethods defaults to POST.
	ActionMethods []string
	// Redirect answers GET with a static redirect instead of a loader.
	Redirect string
	// ErrorTitle and ErrorFallback shape the error view when the backend
	// gave no message.
	ErrorTitle    string
	ErrorFallback string
}

func (r Route) validate() error {
	if !strings.HasPrefix(r.Path, "/") {
		return fmt.Errorf("routing: path %q must start with /", r.Path)
	}
	if r.Loader == nil && r.Action == nil && r.Redirect == "" {
		return fmt.Errorf("routing: route %s has no loader, action, or redirect", r.Path)
	}
	if r.Loader != nil && r.Redirect != "" {
		return fmt.Errorf("routing: route %s cannot both load and redirect", r.Path)
	}
	return nil
}

func (r Route) actionMethods() []string {
	if len(r.ActionMethods) == 0 {
		return []string{http.MethodPost}
	}
	methods := make([]string, 0, len(r.ActionMethods))
	for _, m := range r.ActionMethods {
		methods = append(methods, strings.ToUpper(strings.TrimSpace(m)))
	}
	return methods
}

// Error lets a loader or action choose the status and message of its error
// view.
type Error struct {
	Status  int
	Title   string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("routing: %d %s: %v", e.Status, e.Message, e.Err)
	}
	return fmt.Sprintf("routing: %d %s", e.Status, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func asRouteError(err error) (*Error, bool) {
	var routeErr *Error
	if errors.As(err, &routeErr) {
		return routeErr, true
	}
	return nil, false
}
