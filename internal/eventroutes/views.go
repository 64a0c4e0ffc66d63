package eventroutes

import (
	"github.com/l0p7/eventdesk/internal/events"
	"github.com/l0p7/eventdesk/internal/routing"
)

// EventView decorates an event with the absolute URL of its image.
type EventView struct {
	events.Event
	ImageURL string `json:"imageUrl"`
}

// ImageView is a selectable image with its absolute URL.
type ImageView struct {
	events.SelectableImage
	URL string `json:"url"`
}

// EventsPage is the data of the events index.
type EventsPage struct {
	Recent routing.ViewState `json:"recent"`
	// Search is nil until a search term is submitted.
	Search     *routing.ViewState `json:"search,omitempty"`
	SearchTerm string             `json:"searchTerm"`
	// Fetching counts queries with a request in flight, for the global
	// loading indicator.
	Fetching int `json:"fetching"`
}

// EventPage is the data of the event details page.
type EventPage struct {
	Event routing.ViewState `json:"event"`
}

// NewEventPage is the data of the create form.
type NewEventPage struct {
	Images routing.ViewState `json:"images"`
}

// EditEventPage is the data of the edit form, prefilled from the event.
type EditEventPage struct {
	Event  EventView         `json:"event"`
	Input  events.EventInput `json:"input"`
	Images routing.ViewState `json:"images"`
}

func (a *App) eventView(e events.Event) EventView {
	return EventView{Event: e, ImageURL: a.api.ImageURL(e.Image)}
}

func (a *App) eventViews(list []events.Event) []EventView {
	out := make([]EventView, 0, len(list))
	for _, e := range list {
		out = append(out, a.eventView(e))
	}
	return out
}

func (a *App) imageViews(list []events.SelectableImage) []ImageView {
	out := make([]ImageView, 0, len(list))
	for _, img := range list {
		out = append(out, ImageView{SelectableImage: img, URL: a.api.ImageURL(img.Path)})
	}
	return out
}
