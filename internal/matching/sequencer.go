package matching

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"shipease/internal/general/logger"

	"github.com/google/uuid"
)

// Sequencer drives one matching attempt: offers go to eligible candidates one at
// a time, in list order, until one accepts, the queue runs dry, the global
// deadline passes or the rider cancels.
//
// Every transition happens under mu. Offers are prepared under mu and sent
// after it is released; each send carries a context that is cancelled as soon
// as its offer is closed, and a send whose offer was closed before it started
// is skipped. The outcome is reported after mu is released.
type Sequencer struct {
	req       RideRequest
	cfg       Config
	transport OfferTransport
	sink      OutcomeSink
	clock     Clock
	log       *logger.Logger
	newID     func() string

	mu            sync.Mutex
	ctx           context.Context
	state         State
	queue         []Candidate
	seen          map[string]struct{}
	index         int
	outstanding   *Offer
	offersSent    int
	deadline      time.Time
	deadlineTimer Timer
	offerTimer    Timer
	offerGen      uint64
	cancelSend    context.CancelFunc
	outcome       *Outcome
	done          chan struct{}
}

// Option customizes a Sequencer.
type Option func(*Sequencer)

func WithClock(c Clock) Option {
	return func(s *Sequencer) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithLogger(l *logger.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithOfferIDs replaces the uuid offer id generator.
func WithOfferIDs(gen func() string) Option {
	return func(s *Sequencer) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewSequencer validates its inputs and returns an attempt in StateIdle.
func NewSequencer(req RideRequest, cfg Config, transport OfferTransport, sink OutcomeSink, opts ...Option) (*Sequencer, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if transport == nil {
		return nil, fmt.Errorf("%w: offer transport is required", ErrInvalidConfig)
	}
	if sink == nil {
		return nil, fmt.Errorf("%w: outcome sink is required", ErrInvalidConfig)
	}

	s := &Sequencer{
		req:       req,
		cfg:       cfg,
		transport: transport,
		sink:      sink,
		clock:     SystemClock(),
		log:       logger.Nop(),
		newID:     uuid.NewString,
		ctx:       context.Background(),
		state:     StateIdle,
		seen:      make(map[string]struct{}),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Request returns the request this attempt was built for.
func (s *Sequencer) Request() RideRequest { return s.req }

// Start moves the attempt to AWAITING_CANDIDATES and arms the global deadline.
func (s *Sequencer) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.state.Terminal():
		s.mu.Unlock()
		return ErrAttemptFinished
	case s.state != StateIdle:
		s.mu.Unlock()
		return ErrAlreadyStarted
	}

	// timer callbacks outlive the caller's request
	s.ctx = s.log.WithBookingID(context.WithoutCancel(ctx), s.req.BookingID)
	s.state = StateAwaitingCandidates
	s.deadline = s.clock.Now().Add(s.cfg.GlobalDeadline)
	s.deadlineTimer = s.clock.AfterFunc(s.cfg.GlobalDeadline, s.onDeadline)

	s.log.Info(s.ctx, "match_started", "Matching attempt started", map[string]any{
		"category":      s.req.Category,
		"deadline":      s.deadline.UTC().Format(time.RFC3339),
		"offer_timeout": s.cfg.OfferTimeout.String(),
	})
	s.mu.Unlock()
	return nil
}

// DeliverCandidates hands a candidate list to the attempt. The first delivery
// fixes the working queue; later deliveries only append drivers not seen yet.
// Malformed candidates reject the whole list before any transition.
func (s *Sequencer) DeliverCandidates(ctx context.Context, candidates []Candidate) error {
	for i, c := range candidates {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("candidate %d: %w", i, err)
		}
	}

	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return ErrNotStarted
	}
	if s.state.Terminal() {
		s.log.Debug(s.ctx, "candidates_ignored", "Candidates delivered after attempt finished", map[string]any{
			"state": s.state, "count": len(candidates),
		})
		s.mu.Unlock()
		return nil
	}
	if out := s.checkDeadlineLocked(); out != nil {
		s.mu.Unlock()
		s.report(out)
		return nil
	}

	added := s.enqueueLocked(candidates)
	s.log.Info(s.ctx, "candidates_delivered", "Candidate list delivered", map[string]any{
		"received": len(candidates), "eligible_new": added, "queue_len": len(s.queue), "state": s.state,
	})

	var next step
	if s.state == StateAwaitingCandidates {
		if len(s.queue) == 0 {
			next.out = s.finishLocked(OutcomeExhausted, "", ReasonNoEligibleCandidates)
		} else {
			next = s.advanceLocked()
		}
	}
	s.mu.Unlock()

	s.proceed(next)
	return nil
}

// HandleResponse applies a driver's answer. Answers from anyone but the
// outstanding driver, for a stale offer, or after the attempt finished are
// ignored. Only a malformed response is an error.
func (s *Sequencer) HandleResponse(ctx context.Context, resp Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	if out := s.checkDeadlineLocked(); out != nil {
		s.mu.Unlock()
		s.report(out)
		return nil
	}
	if reason := s.ignoreReasonLocked(resp); reason != "" {
		s.log.Info(s.ctx, "response_ignored", "Driver response ignored", map[string]any{
			"driver_id": resp.DriverID, "offer_id": resp.OfferID, "accepted": resp.Accepted,
			"state": s.state, "reason": reason,
		})
		s.mu.Unlock()
		return nil
	}

	var next step
	if resp.Accepted {
		next.out = s.finishLocked(OutcomeConfirmed, resp.DriverID, "")
	} else {
		s.log.Info(s.ctx, "offer_declined", "Driver declined offer", map[string]any{
			"driver_id": resp.DriverID, "offer_id": s.outstanding.OfferID,
		})
		s.clearOfferLocked()
		next = s.advanceLocked()
	}
	s.mu.Unlock()

	s.proceed(next)
	return nil
}

// Cancel ends a live attempt immediately, whether or not an offer is outstanding.
func (s *Sequencer) Cancel(ctx context.Context, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = ReasonRiderCancelled
	}

	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return ErrAttemptFinished
	}
	if out := s.checkDeadlineLocked(); out != nil {
		s.mu.Unlock()
		s.report(out)
		return ErrAttemptFinished
	}
	if s.state == StateIdle {
		s.ctx = s.log.WithBookingID(context.WithoutCancel(ctx), s.req.BookingID)
	}
	out := s.finishLocked(OutcomeCancelled, "", reason)
	s.mu.Unlock()

	s.report(out)
	return nil
}

// Snapshot returns a copy of the attempt's current state.
func (s *Sequencer) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		BookingID:  s.req.BookingID,
		State:      s.state,
		Index:      s.index,
		QueueLen:   len(s.queue),
		OffersSent: s.offersSent,
		Deadline:   s.deadline,
	}
	if s.outstanding != nil {
		snap.Outstanding = s.outstanding.DriverID
	}
	if s.outcome != nil {
		o := *s.outcome
		snap.Outcome = &o
	}
	return snap
}

// Done is closed once the outcome has been reported.
func (s *Sequencer) Done() <-chan struct{} { return s.done }

// Outcome returns the terminal outcome, if one has been recorded.
func (s *Sequencer) Outcome() (Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.outcome == nil {
		return Outcome{}, false
	}
	return *s.outcome, true
}

// failFeed ends an attempt that never got a usable candidate list.
func (s *Sequencer) failFeed(err error) {
	s.mu.Lock()
	if s.state != StateAwaitingCandidates {
		s.mu.Unlock()
		return
	}
	if out := s.checkDeadlineLocked(); out != nil {
		s.mu.Unlock()
		s.report(out)
		return
	}
	s.log.Error(s.ctx, "candidate_feed_failed", "Candidate feed failed, no drivers to offer", err, nil)
	out := s.finishLocked(OutcomeExhausted, "", ReasonCandidateFeedFailed)
	s.mu.Unlock()

	s.report(out)
}

// ----- timers -----

func (s *Sequencer) onDeadline() {
	s.mu.Lock()
	if s.state.Terminal() {
		s.mu.Unlock()
		return
	}
	out := s.finishLocked(OutcomeTimedOut, "", ReasonDeadlineElapsed)
	s.mu.Unlock()

	s.report(out)
}

func (s *Sequencer) onOfferTimeout(gen uint64) {
	s.mu.Lock()
	if s.state.Terminal() || gen != s.offerGen || s.outstanding == nil {
		s.mu.Unlock()
		return
	}
	if out := s.checkDeadlineLocked(); out != nil {
		s.mu.Unlock()
		s.report(out)
		return
	}

	s.log.Info(s.ctx, "offer_timed_out", "Driver did not answer in time", map[string]any{
		"driver_id": s.outstanding.DriverID, "offer_id": s.outstanding.OfferID,
	})
	s.clearOfferLocked()
	next := s.advanceLocked()
	s.mu.Unlock()

	s.proceed(next)
}

// ----- locked helpers -----

// checkDeadlineLocked finishes the attempt as timed out when the deadline has
// passed but its timer has not run yet.
func (s *Sequencer) checkDeadlineLocked() *Outcome {
	if s.state == StateIdle || s.state.Terminal() {
		return nil
	}
	if s.clock.Now().Before(s.deadline) {
		return nil
	}
	return s.finishLocked(OutcomeTimedOut, "", ReasonDeadlineElapsed)
}

func (s *Sequencer) ignoreReasonLocked(resp Response) string {
	switch {
	case resp.BookingID != s.req.BookingID:
		return "booking_mismatch"
	case s.state.Terminal():
		return "attempt_finished"
	case s.state != StateOffering || s.outstanding == nil:
		return "no_outstanding_offer"
	case resp.DriverID != s.outstanding.DriverID:
		return "not_outstanding_driver"
	case resp.OfferID != "" && resp.OfferID != s.outstanding.OfferID:
		return "stale_offer"
	default:
		return ""
	}
}

// enqueueLocked appends eligible, unseen candidates in list order.
func (s *Sequencer) enqueueLocked(candidates []Candidate) int {
	added := 0
	for _, c := range candidates {
		if c.Category != s.req.Category {
			continue
		}
		if _, dup := s.seen[c.DriverID]; dup {
			continue
		}
		s.seen[c.DriverID] = struct{}{}
		s.queue = append(s.queue, c)
		added++
	}
	return added
}

// step is what a transition leaves to do once mu is released: report an
// outcome or send a prepared offer.
type step struct {
	out  *Outcome
	send *pendingOffer
}

type pendingOffer struct {
	ctx   context.Context
	offer Offer
	gen   uint64
}

// advanceLocked prepares an offer for the next candidate in the queue and arms
// its timer. Returns the outcome instead when the queue runs dry.
func (s *Sequencer) advanceLocked() step {
	if s.index < len(s.queue) {
		c := s.queue[s.index]
		s.index++

		now := s.clock.Now()
		offer := Offer{
			OfferID:   s.newID(),
			BookingID: s.req.BookingID,
			RiderID:   s.req.RiderID,
			DriverID:  c.DriverID,
			Pickup:    s.req.Pickup,
			Drop:      s.req.Drop,
			Price:     s.req.Price,
			Category:  s.req.Category,
			Seq:       s.index,
			SentAt:    now,
			ExpiresAt: now.Add(s.cfg.OfferTimeout),
		}
		s.state = StateOffering
		s.offersSent++
		s.offerGen++
		gen := s.offerGen
		s.outstanding = &offer
		s.offerTimer = s.clock.AfterFunc(s.cfg.OfferTimeout, func() { s.onOfferTimeout(gen) })

		sendCtx, cancel := context.WithCancel(s.ctx)
		s.cancelSend = cancel
		return step{send: &pendingOffer{ctx: sendCtx, offer: offer, gen: gen}}
	}

	reason := ReasonAllDeclined
	if s.offersSent == 0 && len(s.queue) == 0 {
		reason = ReasonNoEligibleCandidates
	}
	return step{out: s.finishLocked(OutcomeExhausted, "", reason)}
}

// proceed runs the work a transition left behind. A failed send counts as a
// decline and moves on to the next candidate.
func (s *Sequencer) proceed(next step) {
	for next.send != nil {
		next = s.send(next.send)
	}
	s.report(next.out)
}

func (s *Sequencer) send(p *pendingOffer) step {
	offer := p.offer
	err := p.ctx.Err()
	if err == nil {
		err = s.transport.SendOffer(p.ctx, offer)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state.Terminal() || p.gen != s.offerGen {
		s.log.Debug(s.ctx, "offer_abandoned", "Offer closed while it was being sent", map[string]any{
			"driver_id": offer.DriverID, "offer_id": offer.OfferID, "state": s.state,
		})
		return step{}
	}
	if err != nil {
		s.log.Error(s.ctx, "offer_send_failed", "Offer could not be delivered, skipping driver", err, map[string]any{
			"driver_id": offer.DriverID, "offer_id": offer.OfferID, "seq": offer.Seq,
		})
		s.offersSent--
		s.clearOfferLocked()
		if out := s.checkDeadlineLocked(); out != nil {
			return step{out: out}
		}
		return s.advanceLocked()
	}

	s.log.Info(s.ctx, "offer_sent", "Offer sent to driver", map[string]any{
		"driver_id": offer.DriverID, "offer_id": offer.OfferID, "seq": offer.Seq,
		"expires_at": offer.ExpiresAt.UTC().Format(time.RFC3339),
	})
	return step{}
}

func (s *Sequencer) clearOfferLocked() {
	if s.offerTimer != nil {
		s.offerTimer.Stop()
		s.offerTimer = nil
	}
	if s.cancelSend != nil {
		s.cancelSend()
		s.cancelSend = nil
	}
	s.offerGen++
	s.outstanding = nil
}

// finishLocked records the terminal outcome and stops both timers.
func (s *Sequencer) finishLocked(kind OutcomeKind, driverID, reason string) *Outcome {
	next := outcomeState(kind)
	if !s.state.CanTransitionTo(next) {
		return nil
	}

	s.clearOfferLocked()
	if s.deadlineTimer != nil {
		s.deadlineTimer.Stop()
		s.deadlineTimer = nil
	}
	s.state = next
	s.outcome = &Outcome{
		Kind:       kind,
		BookingID:  s.req.BookingID,
		DriverID:   driverID,
		OffersSent: s.offersSent,
		DecidedAt:  s.clock.Now(),
		Reason:     reason,
	}

	s.log.Info(s.ctx, "match_"+string(kind), "Matching attempt finished", map[string]any{
		"outcome": kind, "driver_id": driverID, "reason": reason, "offers_sent": s.offersSent,
	})
	out := *s.outcome
	return &out
}

// report must only be handed the result of a successful finishLocked.
func (s *Sequencer) report(out *Outcome) {
	if out == nil {
		return
	}
	s.sink.Report(s.ctx, *out)
	close(s.done)
}
