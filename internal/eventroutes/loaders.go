package eventroutes

import (
	"context"
	"log/slog"
	"net/http"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/l0p7/eventdesk/internal/events"
	"github.com/l0p7/eventdesk/internal/querycache"
	"github.com/l0p7/eventdesk/internal/routing"
)

const (
	errorTitle        = "An error occurred"
	eventsFallback    = "Failed to fetch events."
	eventTitle        = "Failed to load event"
	eventFallback     = "Failed to fetch event data, please try again later."
	imagesTitle       = "Failed to load selectable images"
	imagesFallback    = "Please try again later."
	loadEventFallback = "Failed to load event. Please check your inputs and try again later."
	updateTitle       = "Failed to update event"
	updateFallback    = "Failed to update event. Please check your inputs and try again later."
	missingIDMessage  = "An event id is required."
)

func (a *App) loadEvents(ctx context.Context, req routing.Request) (any, error) {
	page := EventsPage{}
	_, searching := req.Query["search"]
	page.SearchTerm = req.Query.Get("search")

	// Sections fail independently, so neither cancels the other.
	var wg sync.WaitGroup
	wg.Go(func() {
		list, err := a.listEvents(ctx, events.ListParams{Max: a.opts.RecentMax},
			querycache.WithStaleTime(a.opts.RecentStaleTime))
		page.Recent = routing.Section(a.viewsOrNil(list, err), err, errorTitle, eventsFallback)
	})
	if searching {
		wg.Go(func() {
			list, err := a.listEvents(ctx, events.ListParams{Search: page.SearchTerm})
			state := routing.Section(a.viewsOrNil(list, err), err, errorTitle, eventsFallback)
			page.Search = &state
		})
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	page.Fetching = a.cache.IsFetching()
	return page, nil
}

func (a *App) loadNewEvent(ctx context.Context, _ routing.Request) (any, error) {
	page := NewEventPage{Images: a.imagesSection(ctx)}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return page, nil
}

func (a *App) loadEventDetails(ctx context.Context, req routing.Request) (any, error) {
	id := req.Param("id")
	e, err := a.getEvent(ctx, id)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	var data any
	if err == nil {
		data = a.eventView(e)
	}
	return EventPage{Event: routing.Section(data, err, eventTitle, eventFallback)}, nil
}

// loadEditEvent fails the page when the event cannot be loaded; the image
// list only degrades its own section.
func (a *App) loadEditEvent(ctx context.Context, req routing.Request) (any, error) {
	id := req.Param("id")
	if id == "" {
		return nil, &routing.Error{Status: http.StatusBadRequest, Title: eventTitle, Message: missingIDMessage}
	}

	var (
		event  events.Event
		images routing.ViewState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		event, err = a.getEvent(gctx, id, querycache.WithStaleTime(a.opts.EventStaleTime))
		return err
	})
	g.Go(func() error {
		images = a.imagesSection(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		a.logger.Debug("edit loader failed", slog.String("event_id", id), slog.Any("error", err))
		return nil, routing.Fail(err, eventTitle, loadEventFallback)
	}
	return EditEventPage{Event: a.eventView(event), Input: event.Input(), Images: images}, nil
}

func (a *App) imagesSection(ctx context.Context) routing.ViewState {
	list, err := a.listImages(ctx)
	var data any
	if err == nil {
		data = a.imageViews(list)
	}
	return routing.Section(data, err, imagesTitle, imagesFallback)
}

func (a *App) viewsOrNil(list []events.Event, err error) any {
	if err != nil {
		return nil
	}
	return a.eventViews(list)
}
