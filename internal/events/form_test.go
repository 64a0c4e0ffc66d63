package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeForm(t *testing.T) {
	input, err := DecodeForm(map[string]string{
		"title":       " Meetup ",
		"description": "desc",
		"date":        "2024-05-01",
		"time":        "18:00",
		"location":    "Hall A",
		"image":       "img1.jpg",
		"unrelated":   "ignored",
	})
	require.NoError(t, err)
	require.Equal(t, EventInput{
		Title:       "Meetup",
		Description: "desc",
		Date:        "2024-05-01",
		Time:        "18:00",
		Location:    "Hall A",
		Image:       "img1.jpg",
	}, input)
}

func TestDecodeFormEmptyRecord(t *testing.T) {
	input, err := DecodeForm(nil)
	require.NoError(t, err)
	require.Equal(t, EventInput{}, input)
}

func TestEventApplyAndInput(t *testing.T) {
	original := Event{ID: "e1", Title: "Old", Location: "Room 1", Image: "a.jpg"}
	patch := EventInput{Title: "New", Date: "2024-06-01", Time: "09:30", Location: "Room 2", Image: "b.jpg"}

	updated := original.Apply(patch)
	require.Equal(t, "e1", updated.ID)
	require.Equal(t, patch, updated.Input())
	require.Equal(t, "Old", original.Title)
}
