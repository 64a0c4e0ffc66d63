package querycache

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyString(t *testing.T) {
	base := NewKey("events")
	require.Equal(t, "events", base.String())
	require.Equal(t, "events/e1", base.WithID("e1").String())
	require.Equal(t, "events/a%2Fb", base.WithID("a/b").String())
	require.Equal(t, "events?max=3&search=x", base.WithParam("search", "x").WithParam("max", "3").String())
	require.Equal(t, "events", base.WithParam("search", "").String())
}

func TestKeyEqualityByValue(t *testing.T) {
	list := []Key{
		NewKey("events"),
		NewKey("events").WithParam("max", "3"),
		NewKey("events").WithParam("search", "x"),
		NewKey("events").WithParam("search", "x").WithParam("max", "3"),
	}
	seen := map[string]bool{}
	for _, k := range list {
		require.False(t, seen[k.String()], "duplicate key %s", k)
		seen[k.String()] = true
	}

	a := NewKey("events").WithParam("max", "3").WithParam("search", "x")
	b := Key{Category: "events", Params: map[string]string{"search": "x", "max": "3"}}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(NewKey("events")))
}

func TestKeyWithParamCopies(t *testing.T) {
	base := NewKey("events").WithParam("max", "3")
	narrowed := base.WithParam("search", "x")
	require.Len(t, base.Params, 1)
	require.Len(t, narrowed.Params, 2)

	cleared := base.WithParam("max", "")
	require.Nil(t, cleared.Params)
	require.Equal(t, "3", base.Params["max"])
}

func TestKeyMatches(t *testing.T) {
	events := NewKey("events")
	detail := events.WithID("e1")
	search := events.WithParam("search", "x").WithParam("max", "3")

	require.True(t, detail.Matches(events))
	require.True(t, search.Matches(events))
	require.True(t, search.Matches(events.WithParam("search", "x")))
	require.False(t, search.Matches(events.WithParam("search", "y")))
	require.True(t, detail.Matches(events.WithID("e1")))
	require.False(t, detail.Matches(events.WithID("e2")))
	require.False(t, NewKey("events-images").Matches(events))
	require.False(t, events.Matches(detail))
}
