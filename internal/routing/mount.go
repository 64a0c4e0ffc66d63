package routing

import (
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/l0p7/eventdesk/internal/gateway"
	"github.com/l0p7/eventdesk/internal/logging"
)

const maxFormMemory = 10 << 20

// Mount registers every route on r. GET runs the loader and answers
// {"data": ...}; action methods run the action and answer 303 See Other.
func Mount(r chi.Router, logger *slog.Logger, routes ...Route) error {
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With(slog.String("agent", "routing"))
	for _, route := range routes {
		if err := route.validate(); err != nil {
			return err
		}
		b := binding{route: route, logger: logger}
		switch {
		case route.Redirect != "":
			r.Get(route.Path, b.serveRedirect)
		case route.Loader != nil:
			r.Get(route.Path, b.serveLoader)
		}
		if route.Action != nil {
			for _, method := range route.actionMethods() {
				r.Method(method, route.Path, http.HandlerFunc(b.serveAction))
			}
		}
	}
	return nil
}

type binding struct {
	route  Route
	logger *slog.Logger
}

func (b binding) serveRedirect(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, Resolve(r.URL.Path, b.route.Redirect), http.StatusFound)
}

func (b binding) serveLoader(w http.ResponseWriter, r *http.Request) {
	req := newRequest(r)
	data, err := b.route.Loader(r.Context(), req)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (b binding) serveAction(w http.ResponseWriter, r *http.Request) {
	req := newRequest(r)
	form, err := parseForm(r)
	if err != nil {
		b.writeError(w, r, &Error{Status: http.StatusBadRequest, Message: "The submitted form could not be read.", Err: err})
		return
	}
	req.Form = form

	target, err := b.route.Action(r.Context(), req)
	if err != nil {
		b.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", Resolve(r.URL.Path, target))
	w.WriteHeader(http.StatusSeeOther)
}

func (b binding) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if gateway.IsCanceled(err) || r.Context().Err() != nil {
		b.logger.DebugContext(r.Context(), "request abandoned", slog.String("route", b.route.Path))
		return
	}

	view := ErrorView{Title: b.route.ErrorTitle, Message: gateway.MessageOf(err, b.route.ErrorFallback)}
	status := http.StatusInternalServerError
	if routeErr, ok := asRouteError(err); ok {
		if routeErr.Status > 0 {
			status = routeErr.Status
		}
		if routeErr.Title != "" {
			view.Title = routeErr.Title
		}
		if routeErr.Message != "" {
			view.Message = routeErr.Message
		}
	} else if code := gateway.StatusOf(err); code >= 400 && code <= 599 {
		status = code
	}
	if view.Title == "" {
		view.Title = "An error occurred"
	}
	if view.Message == "" {
		view.Message = http.StatusText(status)
	}

	b.logger.WarnContext(r.Context(), "route failed",
		slog.String("route", b.route.Path),
		slog.String("method", r.Method),
		slog.Int("status", status),
		slog.Any("error", err),
	)
	writeJSON(w, status, view)
}

func newRequest(r *http.Request) Request {
	params := map[string]string{}
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key == "*" || i >= len(rctx.URLParams.Values) {
				continue
			}
			params[key] = rctx.URLParams.Values[i]
		}
	}
	return Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Params: params,
		Query:  r.URL.Query(),
		HTTP:   r,
	}
}

// parseForm reads an urlencoded or multipart body into a flat record.
func parseForm(r *http.Request) (map[string]string, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(maxFormMemory); err != nil {
			return nil, err
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, err
	}
	if r.PostForm == nil {
		return map[string]string{}, nil
	}
	return FlattenForm(r.PostForm), nil
}

// FlattenForm reduces submitted values to a flat record. When a field is
// submitted more than once the last value wins.
func FlattenForm(values url.Values) map[string]string {
	record := make(map[string]string, len(values))
	for name, vals := range values {
		if len(vals) == 0 {
			continue
		}
		record[name] = vals[len(vals)-1]
	}
	return record
}

// Resolve interprets target relative to the route at current, so "../" from
// /events/e1/edit is /events/e1. Absolute targets are returned unchanged.
func Resolve(current, target string) string {
	target = strings.TrimSpace(target)
	if target == "" {
		return current
	}
	ref, err := url.Parse(target)
	if err != nil {
		return target
	}
	if ref.IsAbs() || strings.HasPrefix(ref.Path, "/") {
		return target
	}
	base, err := url.Parse(strings.TrimSuffix(current, "/") + "/")
	if err != nil {
		return target
	}
	resolved := base.ResolveReference(ref)
	if len(resolved.Path) > 1 {
		resolved.Path = strings.TrimSuffix(resolved.Path, "/")
	}
	return resolved.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
