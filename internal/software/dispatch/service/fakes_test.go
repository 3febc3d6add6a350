package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"shipease/internal/domain/booking"
	"shipease/internal/domain/geo"
	"shipease/internal/general/contracts"
	"shipease/internal/matching"

	amqp "github.com/rabbitmq/amqp091-go"
)

// memStore backs the unit of work and both repositories.
type memStore struct {
	mu       sync.Mutex
	bookings map[string]booking.Booking
	events   []booking.Event
	failTx   error
	failNext int
}

func newMemStore(bookings ...booking.Booking) *memStore {
	s := &memStore{bookings: map[string]booking.Booking{}}
	for _, b := range bookings {
		s.bookings[b.ID] = b
	}
	return s
}

func (s *memStore) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	failTx := s.failTx
	if s.failNext > 0 {
		s.failNext--
		failTx = errDBDown
	}
	s.mu.Unlock()
	if failTx != nil {
		return failTx
	}
	return fn(ctx)
}

// failTransactions makes the next n transactions fail; n < 0 fails all of them.
func (s *memStore) failTransactions(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		s.failTx = errDBDown
		return
	}
	s.failTx = nil
	s.failNext = n
}

func (s *memStore) GetByID(_ context.Context, id string) (*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, booking.ErrNotFound
	}
	return &b, nil
}

func (s *memStore) LockByID(ctx context.Context, id string) (*booking.Booking, error) {
	return s.GetByID(ctx, id)
}

func (s *memStore) ListByRider(_ context.Context, riderID string, limit int) ([]*booking.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*booking.Booking
	for _, b := range s.bookings {
		if b.RiderID == riderID {
			b := b
			out = append(out, &b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) UpdateMatch(_ context.Context, b *booking.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.bookings[b.ID]
	if !ok || cur.Status != booking.StatusSearching {
		return booking.ErrInvalidStatusMove
	}
	s.bookings[b.ID] = *b
	return nil
}

func (s *memStore) Append(_ context.Context, ev *booking.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, *ev)
	return nil
}

func (s *memStore) ListByBooking(_ context.Context, bookingID string, _ int) ([]*booking.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*booking.Event
	for i := range s.events {
		if s.events[i].BookingID == bookingID {
			ev := s.events[i]
			out = append(out, &ev)
		}
	}
	return out, nil
}

func (s *memStore) CountByStatusSince(_ context.Context, _ time.Time) (map[booking.Status]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[booking.Status]int{}
	for _, b := range s.bookings {
		counts[b.Status]++
	}
	return counts, nil
}

func (s *memStore) CountByTypeSince(_ context.Context, _ time.Time) (map[booking.EventType]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	counts := map[booking.EventType]int{}
	for _, ev := range s.events {
		counts[ev.Type]++
	}
	return counts, nil
}

func (s *memStore) booking(id string) booking.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.bookings[id]
}

func (s *memStore) eventTypes(bookingID string) []booking.EventType {
	evs, _ := s.ListByBooking(context.Background(), bookingID, 0)
	types := make([]booking.EventType, 0, len(evs))
	for _, ev := range evs {
		types = append(types, ev.Type)
	}
	return types
}

type published struct {
	exchange string
	key      string
	body     []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *fakePublisher) PublishJSON(_ context.Context, exchange, routingKey string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{exchange: exchange, key: routingKey, body: body})
	return nil
}

func (p *fakePublisher) Keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	keys := make([]string, 0, len(p.msgs))
	for _, m := range p.msgs {
		keys = append(keys, m.key)
	}
	return keys
}

func (p *fakePublisher) Last() published {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.msgs) == 0 {
		return published{}
	}
	return p.msgs[len(p.msgs)-1]
}

type fakeNotifier struct {
	mu      sync.Mutex
	updates map[string][]contracts.WSRiderMatchUpdate
}

func (n *fakeNotifier) NotifyRider(_ context.Context, riderID string, update contracts.WSRiderMatchUpdate) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.updates == nil {
		n.updates = map[string][]contracts.WSRiderMatchUpdate{}
	}
	n.updates[riderID] = append(n.updates[riderID], update)
	return nil
}

func (n *fakeNotifier) For(riderID string) []contracts.WSRiderMatchUpdate {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]contracts.WSRiderMatchUpdate(nil), n.updates[riderID]...)
}

type fakeTransport struct {
	mu     sync.Mutex
	offers []matching.Offer
}

func (t *fakeTransport) SendOffer(_ context.Context, offer matching.Offer) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.offers = append(t.offers, offer)
	return nil
}

func (t *fakeTransport) Offers() []matching.Offer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]matching.Offer(nil), t.offers...)
}

type fakeFeed struct {
	candidates []matching.Candidate
	err        error
}

func (f *fakeFeed) NearbyCandidates(_ context.Context, _ booking.VehicleCategory, _ geo.Point) ([]matching.Candidate, error) {
	return f.candidates, f.err
}

// fakeConsumer replays its deliveries through the handler and records the verdicts.
type fakeConsumer struct {
	deliveries []amqp.Delivery
	results    []error
	queue      string
}

func (c *fakeConsumer) ConsumeForever(ctx context.Context, queue, _ string, _ int, handler func(context.Context, amqp.Delivery) error) error {
	c.queue = queue
	for _, d := range c.deliveries {
		c.results = append(c.results, handler(ctx, d))
	}
	return nil
}

var errDBDown = errors.New("db down")

func searchingBooking(id, riderID string) booking.Booking {
	return booking.Booking{
		ID:         id,
		RiderID:    riderID,
		Category:   booking.CategoryBike,
		Pickup:     geo.Point{Lat: 12.9716, Lng: 77.5946},
		Drop:       geo.Point{Lat: 12.9352, Lng: 77.6245},
		TotalPrice: 149.5,
		Status:     booking.StatusSearching,
	}
}

func candidate(id string) matching.Candidate {
	return matching.Candidate{DriverID: id, Category: booking.CategoryBike, Location: geo.Point{Lat: 12.97, Lng: 77.59}}
}
