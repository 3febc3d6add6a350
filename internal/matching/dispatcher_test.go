package matching

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second
const tick = 5 * time.Millisecond

type dispatcherHarness struct {
	d         *Dispatcher
	clock     *fakeClock
	feed      *staticFeed
	transport *recordingTransport
	sink      *recordingSink
}

func newDispatcherHarness(t *testing.T, cfg Config, feed *staticFeed) *dispatcherHarness {
	t.Helper()
	clock := newFakeClock()
	h := &dispatcherHarness{clock: clock, feed: feed, transport: newTransport(clock), sink: &recordingSink{}}
	d, err := NewDispatcher(cfg, feed, h.transport, h.sink, WithDispatcherClock(clock))
	require.NoError(t, err)
	h.d = d
	return h
}

func (h *dispatcherHarness) waitOutcome(t *testing.T) Outcome {
	t.Helper()
	require.Eventually(t, func() bool { return len(h.sink.Outcomes()) == 1 }, waitFor, tick)
	return h.sink.Outcomes()[0]
}

func TestDispatcher_BeginOfferAccept(t *testing.T) {
	feed := &staticFeed{lists: [][]Candidate{{bike("A"), truck("T"), bike("B")}}}
	h := newDispatcherHarness(t, defaultCfg(), feed)
	ctx := context.Background()

	snap, err := h.d.Begin(ctx, testRequest("bk-1"))
	require.NoError(t, err)
	assert.Equal(t, "bk-1", snap.BookingID)
	assert.Equal(t, 1, h.d.Active())

	require.Eventually(t, func() bool { return len(h.transport.Offers()) == 1 }, waitFor, tick)
	offer := h.transport.Last()
	assert.Equal(t, "A", offer.DriverID)
	assert.Equal(t, "rider-1", offer.RiderID)
	assert.Equal(t, 149.5, offer.Price)
	assert.NotEmpty(t, offer.OfferID)

	require.NoError(t, h.d.Respond(ctx, Response{BookingID: "bk-1", DriverID: "A", OfferID: offer.OfferID, Accepted: true}))

	out := h.waitOutcome(t)
	assert.Equal(t, OutcomeConfirmed, out.Kind)
	assert.Equal(t, "A", out.DriverID)
	assert.Equal(t, 0, h.d.Active())

	_, err = h.d.Snapshot("bk-1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
	assert.ErrorIs(t, h.d.Respond(ctx, Response{BookingID: "bk-1", DriverID: "B", Accepted: true}), ErrAttemptNotFound)
}

func TestDispatcher_RejectsDuplicateAndInvalid(t *testing.T) {
	feed := &staticFeed{lists: [][]Candidate{{bike("A")}}}
	h := newDispatcherHarness(t, defaultCfg(), feed)
	ctx := context.Background()

	_, err := h.d.Begin(ctx, testRequest("bk-1"))
	require.NoError(t, err)

	_, err = h.d.Begin(ctx, testRequest("bk-1"))
	assert.ErrorIs(t, err, ErrAttemptExists)

	_, err = h.d.Begin(ctx, testRequest(""))
	assert.ErrorIs(t, err, ErrInvalidRequest)

	assert.ErrorIs(t, h.d.Respond(ctx, Response{BookingID: "bk-1"}), ErrInvalidResponse)
	assert.ErrorIs(t, h.d.Respond(ctx, Response{BookingID: "bk-9", DriverID: "A"}), ErrAttemptNotFound)
	assert.ErrorIs(t, h.d.Cancel(ctx, "bk-9", ""), ErrAttemptNotFound)
	assert.Equal(t, 1, h.d.Active())
}

func TestDispatcher_FeedFailureExhausts(t *testing.T) {
	tests := []struct {
		name string
		feed *staticFeed
	}{
		{"feed error", &staticFeed{err: errors.New("redis down")}},
		{"malformed candidate", &staticFeed{lists: [][]Candidate{{bike("A"), {DriverID: "", Category: "BIKE"}}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newDispatcherHarness(t, defaultCfg(), tt.feed)

			_, err := h.d.Begin(context.Background(), testRequest("bk-1"))
			require.NoError(t, err)

			out := h.waitOutcome(t)
			assert.Equal(t, OutcomeExhausted, out.Kind)
			assert.Equal(t, ReasonCandidateFeedFailed, out.Reason)
			assert.Empty(t, h.transport.Offers())
			require.Eventually(t, func() bool { return h.d.Active() == 0 }, waitFor, tick)
		})
	}
}

func TestDispatcher_CancelAndOfferTimeouts(t *testing.T) {
	feed := &staticFeed{lists: [][]Candidate{{bike("A"), bike("B")}}}
	h := newDispatcherHarness(t, defaultCfg(), feed)
	ctx := context.Background()

	_, err := h.d.Begin(ctx, testRequest("bk-1"))
	require.NoError(t, err)
	_, err = h.d.Begin(ctx, testRequest("bk-2"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(h.transport.Offers()) == 2 }, waitFor, tick)

	require.NoError(t, h.d.Cancel(ctx, "bk-1", "rider left"))
	require.Eventually(t, func() bool { return len(h.sink.Outcomes()) == 1 }, waitFor, tick)
	assert.Equal(t, OutcomeCancelled, h.sink.Outcomes()[0].Kind)
	assert.Equal(t, "rider left", h.sink.Outcomes()[0].Reason)

	snap, err := h.d.Snapshot("bk-2")
	require.NoError(t, err)
	assert.Equal(t, StateOffering, snap.State)

	// A and B both let their offers lapse
	h.clock.Advance(40 * time.Second)
	require.Eventually(t, func() bool { return len(h.sink.Outcomes()) == 2 }, waitFor, tick)
	second := h.sink.Outcomes()[1]
	assert.Equal(t, OutcomeExhausted, second.Kind)
	assert.Equal(t, ReasonAllDeclined, second.Reason)
	assert.Equal(t, "bk-2", second.BookingID)
	assert.Equal(t, 2, second.OffersSent)
	assert.Equal(t, 0, h.d.Active())
}

func TestDispatcher_ShutdownCancelsLiveAttempts(t *testing.T) {
	feed := &staticFeed{lists: [][]Candidate{{bike("A")}}}
	h := newDispatcherHarness(t, defaultCfg(), feed)
	ctx := context.Background()

	for _, id := range []string{"bk-1", "bk-2", "bk-3"} {
		_, err := h.d.Begin(ctx, testRequest(id))
		require.NoError(t, err)
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, waitFor)
	defer cancel()
	require.NoError(t, h.d.Shutdown(shutdownCtx))

	outcomes := h.sink.Outcomes()
	require.Len(t, outcomes, 3)
	for _, out := range outcomes {
		assert.Equal(t, OutcomeCancelled, out.Kind)
		assert.Equal(t, ReasonServiceShutdown, out.Reason)
	}
	assert.Equal(t, 0, h.d.Active())
}

func TestDispatcher_RefreshAppendsNewCandidates(t *testing.T) {
	feed := &staticFeed{lists: [][]Candidate{{bike("A")}, {bike("A"), bike("B")}}}
	cfg := defaultCfg()
	cfg.CandidateRefresh = 5 * time.Second
	h := newDispatcherHarness(t, cfg, feed)
	ctx := context.Background()

	_, err := h.d.Begin(ctx, testRequest("bk-1"))
	require.NoError(t, err)

	// deadline, offer timeout and the refresh wait
	require.Eventually(t, func() bool { return h.clock.Pending() == 3 }, waitFor, tick)
	h.clock.Advance(5 * time.Second)

	require.Eventually(t, func() bool {
		snap, err := h.d.Snapshot("bk-1")
		return err == nil && snap.QueueLen == 2
	}, waitFor, tick)
	assert.GreaterOrEqual(t, feed.Calls(), 2)

	require.NoError(t, h.d.Respond(ctx, Response{BookingID: "bk-1", DriverID: "A", Accepted: false}))
	assert.Equal(t, []string{"A", "B"}, h.transport.Drivers())

	require.NoError(t, h.d.Respond(ctx, Response{BookingID: "bk-1", DriverID: "B", Accepted: true}))
	assert.Equal(t, "B", h.waitOutcome(t).DriverID)
}

func TestDispatcher_AttemptStaysRegisteredUntilOutcomeStored(t *testing.T) {
	clock := newFakeClock()
	transport := newTransport(clock)
	sink := newGatedSink()
	d, err := NewDispatcher(defaultCfg(), &staticFeed{lists: [][]Candidate{{bike("A"), bike("B")}}}, transport, sink,
		WithDispatcherClock(clock))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = d.Begin(ctx, testRequest("bk-1"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return len(transport.Offers()) == 1 }, waitFor, tick)

	responded := make(chan error, 1)
	go func() {
		responded <- d.Respond(ctx, Response{BookingID: "bk-1", DriverID: "A", Accepted: true})
	}()
	select {
	case out := <-sink.entered:
		assert.Equal(t, OutcomeConfirmed, out.Kind)
	case <-time.After(waitFor):
		t.Fatal("outcome never reached the sink")
	}

	// the outcome is being stored: the booking still has its attempt
	snap, err := d.Snapshot("bk-1")
	require.NoError(t, err)
	assert.Equal(t, StateConfirmed, snap.State)
	assert.Equal(t, 1, d.Active())

	_, err = d.Begin(ctx, testRequest("bk-1"))
	assert.ErrorIs(t, err, ErrAttemptExists)
	assert.ErrorIs(t, d.Cancel(ctx, "bk-1", ""), ErrAttemptFinished)
	require.NoError(t, d.Respond(ctx, Response{BookingID: "bk-1", DriverID: "B", Accepted: true}))
	assert.Len(t, transport.Offers(), 1)

	close(sink.release)
	require.NoError(t, <-responded)
	assert.Equal(t, 0, d.Active())
	require.Len(t, sink.Outcomes(), 1)
	assert.Equal(t, "A", sink.Outcomes()[0].DriverID)

	_, err = d.Snapshot("bk-1")
	assert.ErrorIs(t, err, ErrAttemptNotFound)
}

func TestNewDispatcher_Validation(t *testing.T) {
	_, err := NewDispatcher(defaultCfg(), nil, newTransport(nil), &recordingSink{})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewDispatcher(Config{CandidateRefresh: -time.Second}, &staticFeed{}, newTransport(nil), &recordingSink{})
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
