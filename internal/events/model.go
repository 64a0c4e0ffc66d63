// Package events holds the data model shared by the gateway, the query keys,
// and the route bindings of the events application.
package events

// Event is a backend-owned event. ID is assigned by the backend on create.
type Event struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	// Date is a calendar date formatted YYYY-MM-DD.
	Date string `json:"date"`
	// Time is a clock time formatted HH:MM.
	Time     string `json:"time"`
	Location string `json:"location"`
	// Image is the Path of a SelectableImage.
	Image string `json:"image"`
}

// EventInput carries the editable fields of an event as submitted by a form.
// Updates replace every field.
type EventInput struct {
	Title       string `json:"title" form:"title"`
	Description string `json:"description" form:"description"`
	Date        string `json:"date" form:"date"`
	Time        string `json:"time" form:"time"`
	Location    string `json:"location" form:"location"`
	Image       string `json:"image" form:"image"`
}

// Apply returns a copy of e with every editable field replaced by in.
func (e Event) Apply(in EventInput) Event {
	e.Title = in.Title
	e.Description = in.Description
	e.Date = in.Date
	e.Time = in.Time
	e.Location = in.Location
	e.Image = in.Image
	return e
}

// Input extracts the editable fields of e.
func (e Event) Input() EventInput {
	return EventInput{
		Title:       e.Title,
		Description: e.Description,
		Date:        e.Date,
		Time:        e.Time,
		Location:    e.Location,
		Image:       e.Image,
	}
}

// SelectableImage is a read-only image an event may reference.
type SelectableImage struct {
	Path    string `json:"path"`
	Caption string `json:"caption"`
}

// ListParams narrows a list query. Zero values mean "not set".
type ListParams struct {
	Search string `json:"search,omitempty"`
	Max    int    `json:"max,omitempty"`
}

// Ack is the acknowledgement body returned by update and delete.
type Ack struct {
	Message string `json:"message,omitempty"`
}
