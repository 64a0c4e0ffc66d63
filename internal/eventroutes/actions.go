package eventroutes

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/l0p7/eventdesk/internal/events"
	"github.com/l0p7/eventdesk/internal/routing"
)

func (a *App) createEvent(ctx context.Context, req routing.Request) (string, error) {
	in, err := events.DecodeForm(req.Form)
	if err != nil {
		return "", &routing.Error{Status: http.StatusBadRequest, Title: "Failed to create event", Message: "Invalid form submission.", Err: err}
	}
	created, err := a.create.Mutate(ctx, in)
	if err != nil {
		return "", err
	}
	a.logger.Info("event created", slog.String("event_id", created.ID))
	return "/events", nil
}

func (a *App) updateEvent(ctx context.Context, req routing.Request) (string, error) {
	id := req.Param("id")
	in, err := events.DecodeForm(req.Form)
	if err != nil {
		return "", &routing.Error{Status: http.StatusBadRequest, Title: updateTitle, Message: "Invalid form submission.", Err: err}
	}
	if _, err := a.update.Mutate(ctx, updateRequest{ID: id, Input: in}); err != nil {
		return "", routing.Fail(err, updateTitle, updateFallback)
	}
	a.logger.Info("event updated", slog.String("event_id", id))
	return "../", nil
}

func (a *App) deleteEvent(ctx context.Context, req routing.Request) (string, error) {
	id := req.Param("id")
	if _, err := a.remove.Mutate(ctx, id); err != nil {
		return "", err
	}
	a.logger.Info("event deleted", slog.String("event_id", id))
	return "/events", nil
}
