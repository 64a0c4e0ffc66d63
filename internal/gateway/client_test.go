package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/l0p7/eventdesk/internal/events"
	"github.com/l0p7/eventdesk/internal/gateway/gatewaytest"
	"github.com/l0p7/eventdesk/internal/logging"
	"github.com/l0p7/eventdesk/internal/metrics"
)

var meetup = events.EventInput{
	Title:       "Meetup",
	Description: "desc",
	Date:        "2024-05-01",
	Time:        "18:00",
	Location:    "Hall A",
	Image:       "img1.jpg",
}

func newClient(t *testing.T, backend *gatewaytest.Backend, opts ...Option) *Client {
	t.Helper()
	client, err := New(backend.URL(), opts...)
	require.NoError(t, err)
	return client
}

func TestNewRejectsRelativeBaseURL(t *testing.T) {
	_, err := New("/events")
	require.Error(t, err)
	_, err = New("")
	require.Error(t, err)
}

func TestListEventsURLShapes(t *testing.T) {
	backend := gatewaytest.New(t)
	client := newClient(t, backend)
	ctx := context.Background()

	cases := []struct {
		params events.ListParams
		uri    string
	}{
		{events.ListParams{}, "/events"},
		{events.ListParams{Max: 3}, "/events?max=3"},
		{events.ListParams{Search: "x"}, "/events?search=x"},
		{events.ListParams{Search: "x", Max: 3}, "/events?search=x&max=3"},
		{events.ListParams{Search: "board games"}, "/events?search=board+games"},
	}
	for _, tc := range cases {
		backend.ResetRequests()
		list, err := client.ListEvents(ctx, tc.params)
		require.NoError(t, err)
		require.NotNil(t, list)
		reqs := backend.Requests()
		require.Len(t, reqs, 1)
		require.Equal(t, tc.uri, reqs[0].URI())
		require.Equal(t, "application/json", reqs[0].Header.Get("Accept"))
	}
}

func TestListEventsFiltersAndLimits(t *testing.T) {
	backend := gatewaytest.New(t, gatewaytest.WithEvents(
		events.Event{ID: "e1", Title: "Chess night", Location: "Cafe"},
		events.Event{ID: "e2", Title: "Hike", Description: "Morning chess talk"},
		events.Event{ID: "e3", Title: "Picnic", Location: "Park"},
	))
	client := newClient(t, backend)

	list, err := client.ListEvents(context.Background(), events.ListParams{Search: "CHESS"})
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = client.ListEvents(context.Background(), events.ListParams{Max: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"e2", "e3"}, []string{list[0].ID, list[1].ID})
}

func TestEventLifecycle(t *testing.T) {
	backend := gatewaytest.New(t)
	client := newClient(t, backend)
	ctx := context.Background()

	created, err := client.CreateEvent(ctx, meetup)
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	require.Equal(t, meetup, created.Input())

	reqs := backend.Requests()
	require.Equal(t, http.MethodPost, reqs[0].Method)
	require.Equal(t, "application/json", reqs[0].Header.Get("Content-Type"))
	var sent map[string]events.EventInput
	require.NoError(t, json.Unmarshal(reqs[0].Body, &sent))
	require.Equal(t, meetup, sent["event"])

	fetched, err := client.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created, fetched)

	patch := meetup
	patch.Title = "Evening meetup"
	ack, err := client.UpdateEvent(ctx, created.ID, patch)
	require.NoError(t, err)
	require.NotEmpty(t, ack.Message)

	fetched, err = client.GetEvent(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, "Evening meetup", fetched.Title)

	_, err = client.DeleteEvent(ctx, created.ID)
	require.NoError(t, err)

	_, err = client.GetEvent(ctx, created.ID)
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusNotFound, fetchErr.StatusCode())
	require.Contains(t, fetchErr.InfoMessage(), created.ID)
}

func TestCreateEventValidationError(t *testing.T) {
	backend := gatewaytest.New(t)
	client := newClient(t, backend)

	_, err := client.CreateEvent(context.Background(), events.EventInput{Title: "Only a title"})
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Equal(t, http.StatusBadRequest, fetchErr.Code)
	require.Equal(t, "Invalid data provided.", MessageOf(err, "fallback"))
}

func TestMissingIDIsRejectedLocally(t *testing.T) {
	backend := gatewaytest.New(t)
	client := newClient(t, backend)

	_, err := client.GetEvent(context.Background(), " ")
	require.Error(t, err)
	_, err = client.DeleteEvent(context.Background(), "")
	require.Error(t, err)
	require.Empty(t, backend.Requests())
}

func TestFetchErrorKeepsUnparsableBody(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.Override(http.MethodGet, "/events/images", http.StatusBadGateway, "upstream down")
	client := newClient(t, backend)

	_, err := client.ListSelectableImages(context.Background())
	var fetchErr *FetchError
	require.ErrorAs(t, err, &fetchErr)
	require.Nil(t, fetchErr.Info)
	require.Equal(t, "upstream down", fetchErr.Body)
	require.Equal(t, "Failed to fetch images.", MessageOf(err, "Failed to fetch images."))
	require.Equal(t, http.StatusBadGateway, StatusOf(err))
}

func TestParseErrorOnMalformedSuccess(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.Override(http.MethodGet, "/events", http.StatusOK, "{not json")
	client := newClient(t, backend)

	_, err := client.ListEvents(context.Background(), events.ListParams{})
	var parseErr *ParseError
	require.ErrorAs(t, err, &parseErr)
	require.False(t, IsCanceled(err))
	var fetchErr *FetchError
	require.False(t, errors.As(err, &fetchErr))
}

func TestCancellationIsDistinguishable(t *testing.T) {
	backend := gatewaytest.New(t)
	backend.Hold()
	client := newClient(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := client.GetEvent(ctx, "e1")
		errCh <- err
	}()

	backend.WaitForRequests(t, 1)
	cancel()

	select {
	case err := <-errCh:
		var cancelErr *CancellationError
		require.ErrorAs(t, err, &cancelErr)
		require.ErrorIs(t, err, context.Canceled)
		require.True(t, IsCanceled(err))
		var fetchErr *FetchError
		require.False(t, errors.As(err, &fetchErr))
	case <-time.After(2 * time.Second):
		t.Fatal("request did not abort")
	}
}

func TestCancelledContextSkipsNetwork(t *testing.T) {
	backend := gatewaytest.New(t)
	client := newClient(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ListEvents(ctx, events.ListParams{})
	require.True(t, IsCanceled(err))
	require.Empty(t, backend.Requests())
}

func TestCorrelationHeader(t *testing.T) {
	backend := gatewaytest.New(t)
	client := newClient(t, backend, WithCorrelationHeader("X-Correlation-ID"))

	ctx := logging.WithCorrelationID(context.Background(), "req-42")
	_, err := client.ListSelectableImages(ctx)
	require.NoError(t, err)
	_, err = client.ListSelectableImages(context.Background())
	require.NoError(t, err)

	reqs := backend.Requests()
	require.Equal(t, "req-42", reqs[0].Header.Get("X-Correlation-ID"))
	_, parseErr := uuid.Parse(reqs[1].Header.Get("X-Correlation-ID"))
	require.NoError(t, parseErr)
}

func TestImageURL(t *testing.T) {
	client, err := New("http://localhost:3000/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:3000", client.BaseURL())
	require.Equal(t, "http://localhost:3000/images/a.jpg", client.ImageURL("images/a.jpg"))
	require.Equal(t, "http://localhost:3000/a.jpg", client.ImageURL("/a.jpg"))
	require.Empty(t, client.ImageURL(""))
}

func TestRequestsAreRecordedInMetrics(t *testing.T) {
	backend := gatewaytest.New(t)
	rec := metrics.NewRecorder(nil)
	client := newClient(t, backend, WithMetrics(rec))

	_, err := client.GetEvent(context.Background(), "missing")
	require.Error(t, err)

	families, err := rec.Gatherer().Gather()
	require.NoError(t, err)
	found := false
	for _, mf := range families {
		if mf.GetName() != "eventdesk_gateway_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["operation"] == "get_event" && labels["status_code"] == "404" && labels["outcome"] == "error" {
				found = true
				require.Equal(t, float64(1), m.GetCounter().GetValue())
			}
		}
	}
	require.True(t, found, "expected get_event 404 counter")
}
