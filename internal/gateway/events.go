package gateway

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/l0p7/eventdesk/internal/events"
)

// ListEvents fetches events narrowed by p.
func (c *Client) ListEvents(ctx context.Context, p events.ListParams) ([]events.Event, error) {
	var body struct {
		Events []events.Event `json:"events"`
	}
	if err := c.do(ctx, "list_events", http.MethodGet, listPath(p), nil, &body); err != nil {
		return nil, err
	}
	if body.Events == nil {
		body.Events = []events.Event{}
	}
	return body.Events, nil
}

// GetEvent fetches one event. Unknown ids surface as a 404 FetchError.
func (c *Client) GetEvent(ctx context.Context, id string) (events.Event, error) {
	path, err := eventPath("get_event", id)
	if err != nil {
		return events.Event{}, err
	}
	var body struct {
		Event events.Event `json:"event"`
	}
	if err := c.do(ctx, "get_event", http.MethodGet, path, nil, &body); err != nil {
		return events.Event{}, err
	}
	return body.Event, nil
}

// CreateEvent posts in and returns the stored event with its assigned id.
func (c *Client) CreateEvent(ctx context.Context, in events.EventInput) (events.Event, error) {
	var body struct {
		Event events.Event `json:"event"`
	}
	if err := c.do(ctx, "create_event", http.MethodPost, "/events", eventEnvelope{Event: in}, &body); err != nil {
		return events.Event{}, err
	}
	return body.Event, nil
}

// UpdateEvent replaces every editable field of event id.
func (c *Client) UpdateEvent(ctx context.Context, id string, in events.EventInput) (events.Ack, error) {
	path, err := eventPath("update_event", id)
	if err != nil {
		return events.Ack{}, err
	}
	var ack events.Ack
	if err := c.do(ctx, "update_event", http.MethodPut, path, eventEnvelope{Event: in}, &ack); err != nil {
		return events.Ack{}, err
	}
	return ack, nil
}

func (c *Client) DeleteEvent(ctx context.Context, id string) (events.Ack, error) {
	path, err := eventPath("delete_event", id)
	if err != nil {
		return events.Ack{}, err
	}
	var ack events.Ack
	if err := c.do(ctx, "delete_event", http.MethodDelete, path, nil, &ack); err != nil {
		return events.Ack{}, err
	}
	return ack, nil
}

func (c *Client) ListSelectableImages(ctx context.Context) ([]events.SelectableImage, error) {
	var body struct {
		Images []events.SelectableImage `json:"images"`
	}
	if err := c.do(ctx, "list_images", http.MethodGet, "/events/images", nil, &body); err != nil {
		return nil, err
	}
	if body.Images == nil {
		body.Images = []events.SelectableImage{}
	}
	return body.Images, nil
}

// ImageURL resolves an image path against the backend base URL.
func (c *Client) ImageURL(path string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(path), "/")
	if trimmed == "" {
		return ""
	}
	return c.baseURL + "/" + trimmed
}

type eventEnvelope struct {
	Event events.EventInput `json:"event"`
}

// listPath builds one of the four list URL shapes; search precedes max.
func listPath(p events.ListParams) string {
	parts := make([]string, 0, 2)
	if p.Search != "" {
		parts = append(parts, "search="+url.QueryEscape(p.Search))
	}
	if p.Max > 0 {
		parts = append(parts, "max="+strconv.Itoa(p.Max))
	}
	if len(parts) == 0 {
		return "/events"
	}
	return "/events?" + strings.Join(parts, "&")
}

func eventPath(op, id string) (string, error) {
	trimmed := strings.TrimSpace(id)
	if trimmed == "" {
		return "", fmt.Errorf("gateway: %s: %w", op, errMissingID)
	}
	return "/events/" + url.PathEscape(trimmed), nil
}
