package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"
)

var t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClock fires timers synchronously from Advance, in due order.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	nextID int
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	id      int
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock { return &fakeClock{now: t0} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	t := &fakeTimer{clock: c, id: c.nextID, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// Advance moves time forward by d, running every timer that comes due on the way.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		next := c.nextDueLocked(target)
		if next == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if next.at.After(c.now) {
			c.now = next.at
		}
		next.fired = true
		c.mu.Unlock()

		next.f()
	}
}

// AdvanceTo moves time to t0+offset.
func (c *fakeClock) AdvanceTo(offset time.Duration) {
	c.Advance(t0.Add(offset).Sub(c.Now()))
}

// Set jumps time without running any timer, as if timer delivery lagged.
func (c *fakeClock) Set(offset time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t0.Add(offset)
}

// Pending counts timers that are armed and not yet fired.
func (c *fakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

func (c *fakeClock) nextDueLocked(target time.Time) *fakeTimer {
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(target) {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return nil
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].at.Equal(due[j].at) {
			return due[i].id < due[j].id
		}
		return due[i].at.Before(due[j].at)
	})
	return due[0]
}

// recordingTransport keeps every offer it was asked to send.
type recordingTransport struct {
	mu     sync.Mutex
	clock  *fakeClock
	offers []Offer
	times  []time.Time
	fail   map[string]bool
}

func newTransport(clock *fakeClock) *recordingTransport {
	return &recordingTransport{clock: clock, fail: map[string]bool{}}
}

func (t *recordingTransport) SendOffer(_ context.Context, offer Offer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail[offer.DriverID] {
		return errors.New("driver socket gone")
	}
	t.offers = append(t.offers, offer)
	if t.clock != nil {
		t.times = append(t.times, t.clock.Now())
	}
	return nil
}

func (t *recordingTransport) Offers() []Offer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Offer(nil), t.offers...)
}

func (t *recordingTransport) Drivers() []string {
	var ids []string
	for _, o := range t.Offers() {
		ids = append(ids, o.DriverID)
	}
	return ids
}

func (t *recordingTransport) Last() Offer {
	offers := t.Offers()
	if len(offers) == 0 {
		return Offer{}
	}
	return offers[len(offers)-1]
}

func (t *recordingTransport) SentAt(i int) time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.times[i]
}

// recordingSink keeps every reported outcome.
type recordingSink struct {
	mu       sync.Mutex
	outcomes []Outcome
}

func (s *recordingSink) Report(_ context.Context, out Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, out)
}

func (s *recordingSink) Outcomes() []Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Outcome(nil), s.outcomes...)
}

// staticFeed returns a configurable list and counts calls.
type staticFeed struct {
	mu    sync.Mutex
	lists [][]Candidate
	err   error
	calls int
}

func (f *staticFeed) NearbyCandidates(_ context.Context, _ booking.VehicleCategory, _ geo.Point) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if len(f.lists) == 0 {
		return nil, nil
	}
	idx := f.calls - 1
	if idx >= len(f.lists) {
		idx = len(f.lists) - 1
	}
	return f.lists[idx], nil
}

func (f *staticFeed) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testRequest(bookingID string) RideRequest {
	return RideRequest{
		BookingID: bookingID,
		RiderID:   "rider-1",
		Category:  booking.CategoryBike,
		Pickup:    geo.Point{Lat: 12.9716, Lng: 77.5946},
		Drop:      geo.Point{Lat: 12.9352, Lng: 77.6245},
		Price:     149.5,
	}
}

func bike(id string) Candidate {
	return Candidate{DriverID: id, Category: booking.CategoryBike, Location: geo.Point{Lat: 12.97, Lng: 77.59}}
}

func truck(id string) Candidate {
	return Candidate{DriverID: id, Category: booking.CategoryTruck, Location: geo.Point{Lat: 12.97, Lng: 77.59}}
}

func sequentialIDs() func() string {
	var mu sync.Mutex
	n := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("offer-%d", n)
	}
}

// gatedTransport holds every send until release is closed.
type gatedTransport struct {
	entered chan Offer
	release chan struct{}

	mu        sync.Mutex
	cancelled []bool
}

func newGatedTransport() *gatedTransport {
	return &gatedTransport{entered: make(chan Offer, 8), release: make(chan struct{})}
}

func (t *gatedTransport) SendOffer(ctx context.Context, offer Offer) error {
	t.entered <- offer
	<-t.release
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelled = append(t.cancelled, ctx.Err() != nil)
	return nil
}

func (t *gatedTransport) Cancelled() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.cancelled...)
}

// gatedSink holds Report until release is closed.
type gatedSink struct {
	recordingSink
	entered chan Outcome
	release chan struct{}
}

func newGatedSink() *gatedSink {
	return &gatedSink{entered: make(chan Outcome, 4), release: make(chan struct{})}
}

func (s *gatedSink) Report(ctx context.Context, out Outcome) {
	s.entered <- out
	<-s.release
	s.recordingSink.Report(ctx, out)
}
