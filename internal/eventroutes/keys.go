package eventroutes

import (
	"strconv"

	"github.com/l0p7/eventdesk/internal/events"
	"github.com/l0p7/eventdesk/internal/querycache"
)

const (
	CategoryEvents = "events"
	CategoryImages = "events-images"
)

// AllEvents is the prefix every event list and detail key falls under.
func AllEvents() querycache.Key {
	return querycache.NewKey(CategoryEvents)
}

// EventsKey identifies one list query. Unset parameters are left out so
// each of the four list shapes is its own key.
func EventsKey(p events.ListParams) querycache.Key {
	key := AllEvents().WithParam("search", p.Search)
	if p.Max > 0 {
		key = key.WithParam("max", strconv.Itoa(p.Max))
	}
	return key
}

func EventKey(id string) querycache.Key {
	return AllEvents().WithID(id)
}

func ImagesKey() querycache.Key {
	return querycache.NewKey(CategoryImages)
}
