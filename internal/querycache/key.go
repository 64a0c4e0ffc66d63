package querycache

import (
	"net/url"
	"strings"
)

// Key identifies a cached query. Two keys are equal when category, id, and
// every parameter match by value.
type Key struct {
	Category string
	ID       string
	Params   map[string]string
}

// NewKey returns a key for category with no id or parameters.
func NewKey(category string) Key {
	return Key{Category: category}
}

// WithID returns a copy of k narrowed to one entity.
func (k Key) WithID(id string) Key {
	out := k.clone()
	out.ID = id
	return out
}

// WithParam returns a copy of k with name set to value. An empty value
// removes the parameter so unset and blank are the same key.
func (k Key) WithParam(name, value string) Key {
	out := k.clone()
	if value == "" {
		delete(out.Params, name)
		if len(out.Params) == 0 {
			out.Params = nil
		}
		return out
	}
	if out.Params == nil {
		out.Params = make(map[string]string, 1)
	}
	out.Params[name] = value
	return out
}

// String renders the canonical form used as the cache identity, e.g.
// "events", "events/e1", or "events?max=3&search=x".
func (k Key) String() string {
	var b strings.Builder
	b.WriteString(k.Category)
	if k.ID != "" {
		b.WriteByte('/')
		b.WriteString(url.PathEscape(k.ID))
	}
	if len(k.Params) > 0 {
		values := make(url.Values, len(k.Params))
		for name, value := range k.Params {
			values.Set(name, value)
		}
		b.WriteByte('?')
		b.WriteString(values.Encode())
	}
	return b.String()
}

func (k Key) Equal(other Key) bool {
	return k.String() == other.String()
}

// Matches reports whether k falls under prefix: same category, the prefix id
// when one is set, and every prefix parameter.
func (k Key) Matches(prefix Key) bool {
	if k.Category != prefix.Category {
		return false
	}
	if prefix.ID != "" && k.ID != prefix.ID {
		return false
	}
	for name, value := range prefix.Params {
		if k.Params[name] != value {
			return false
		}
	}
	return true
}

func (k Key) clone() Key {
	out := Key{Category: k.Category, ID: k.ID}
	if len(k.Params) > 0 {
		out.Params = make(map[string]string, len(k.Params))
		for name, value := range k.Params {
			out.Params[name] = value
		}
	}
	return out
}
