// Package eventroutes wires the events application: its query keys, the
// loaders behind each page, and the create, update, and delete actions.
package eventroutes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/l0p7/eventdesk/internal/events"
	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
	"github.com/l0p7/eventdesk/internal/mutation"
	"github.com/l0p7/eventdesk/internal/querycache"
	"github.com/l0p7/eventdesk/internal/routing"
)

// EventsAPI is the backend surface the routes use.
type EventsAPI interface {
	ListEvents(ctx context.Context, p events.ListParams) ([]events.Event, error)
	GetEvent(ctx context.Context, id string) (events.Event, error)
	CreateEvent(ctx context.Context, in events.EventInput) (events.Event, error)
	UpdateEvent(ctx context.Context, id string, in events.EventInput) (events.Ack, error)
	DeleteEvent(ctx context.Context, id string) (events.Ack, error)
	ListSelectableImages(ctx context.Context) ([]events.SelectableImage, error)
	ImageURL(path string) string
}

// Options tunes the staleness windows of the pages.
type Options struct {
	Logger  *slog.Logger
	Metrics *metrics.Recorder
	// EventStaleTime applies to the edit page's event query.
	EventStaleTime time.Duration
	// RecentStaleTime and RecentMax shape the recent-events preview.
	RecentStaleTime time.Duration
	RecentMax       int
}

type updateRequest struct {
	ID    string
	Input events.EventInput
}

// App serves the events pages.
type App struct {
	api    EventsAPI
	cache  *querycache.Cache
	logger *slog.Logger
	opts   Options

	create *mutation.Mutation[events.EventInput, events.Event]
	update *mutation.Mutation[updateRequest, events.Ack]
	remove *mutation.Mutation[string, events.Ack]
}

func New(api EventsAPI, cache *querycache.Cache, opts Options) *App {
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.RecentMax <= 0 {
		opts.RecentMax = 3
	}
	a := &App{
		api:    api,
		cache:  cache,
		logger: opts.Logger.With(slog.String("agent", "eventroutes")),
		opts:   opts,
	}

	a.create = mutation.New("create_event", api.CreateEvent, mutation.Options[events.EventInput, events.Event]{
		OnSuccess: func(ctx context.Context, _ events.Event, _ events.EventInput) error {
			return a.invalidateEvents(ctx, querycache.RefetchActive)
		},
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	a.update = mutation.New("update_event", func(ctx context.Context, req updateRequest) (events.Ack, error) {
		return api.UpdateEvent(ctx, req.ID, req.Input)
	}, mutation.Options[updateRequest, events.Ack]{
		OnSuccess: func(ctx context.Context, _ events.Ack, _ updateRequest) error {
			return a.invalidateEvents(ctx, querycache.RefetchActive)
		},
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	// The deleted event no longer exists, so nothing is refetched eagerly.
	a.remove = mutation.New("delete_event", api.DeleteEvent, mutation.Options[string, events.Ack]{
		OnSuccess: func(ctx context.Context, _ events.Ack, _ string) error {
			return a.invalidateEvents(ctx, querycache.RefetchNone)
		},
		Logger:  opts.Logger,
		Metrics: opts.Metrics,
	})
	return a
}

// Routes lists the page bindings for routing.Mount.
func (a *App) Routes() []routing.Route {
	return []routing.Route{
		{Path: "/", Redirect: "/events"},
		{
			Path:          "/events",
			Loader:        a.loadEvents,
			ErrorFallback: "Failed to fetch events.",
		},
		{
			Path:          "/events/new",
			Loader:        a.loadNewEvent,
			Action:        a.createEvent,
			ErrorTitle:    "Failed to create event",
			ErrorFallback: "Failed to create event. Please check your inputs and try again later.",
		},
		{
			Path:          "/events/{id}",
			Loader:        a.loadEventDetails,
			Action:        a.deleteEvent,
			ActionMethods: []string{http.MethodDelete, http.MethodPost},
			ErrorTitle:    "Failed to delete event",
			ErrorFallback: "Failed to delete event, please try again later.",
		},
		{
			Path:          "/events/{id}/edit",
			Loader:        a.loadEditEvent,
			Action:        a.updateEvent,
			ActionMethods: []string{http.MethodPut, http.MethodPost},
			ErrorTitle:    "Failed to load event",
			ErrorFallback: "Failed to load event. Please check your inputs and try again later.",
		},
	}
}

// WatchRecent keeps the recent-events preview observed so invalidations
// refetch it eagerly, the way an always-visible preview would.
func (a *App) WatchRecent(ctx context.Context) (*querycache.Observer, error) {
	params := events.ListParams{Max: a.opts.RecentMax}
	return a.cache.Observe(ctx, EventsKey(params), func(ctx context.Context) (any, error) {
		return a.api.ListEvents(ctx, params)
	}, querycache.WithStaleTime(a.opts.RecentStaleTime))
}

func (a *App) invalidateEvents(ctx context.Context, refetch querycache.RefetchType) error {
	_, err := a.cache.InvalidateQueries(ctx, AllEvents(), querycache.InvalidateOptions{Refetch: refetch})
	return err
}

func (a *App) listEvents(ctx context.Context, p events.ListParams, opts ...querycache.FetchOption) ([]events.Event, error) {
	return querycache.Fetch(ctx, a.cache, EventsKey(p), func(ctx context.Context) ([]events.Event, error) {
		return a.api.ListEvents(ctx, p)
	}, opts...)
}

func (a *App) getEvent(ctx context.Context, id string, opts ...querycache.FetchOption) (events.Event, error) {
	return querycache.Fetch(ctx, a.cache, EventKey(id), func(ctx context.Context) (events.Event, error) {
		return a.api.GetEvent(ctx, id)
	}, opts...)
}

func (a *App) listImages(ctx context.Context) ([]events.SelectableImage, error) {
	return querycache.Fetch(ctx, a.cache, ImagesKey(), a.api.ListSelectableImages)
}
