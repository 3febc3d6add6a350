package matching

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"shipease/internal/general/logger"
)

var (
	ErrAttemptExists   = errors.New("matching attempt already running for booking")
	ErrAttemptNotFound = errors.New("no matching attempt for booking")
)

// Dispatcher owns one Sequencer per booking and feeds it candidates. Attempts
// share nothing with each other; the registry only maps booking ids to them.
type Dispatcher struct {
	cfg       Config
	feed      CandidateFeed
	transport OfferTransport
	sink      OutcomeSink
	clock     Clock
	log       *logger.Logger
	seqOpts   []Option

	mu       sync.Mutex
	attempts map[string]*attempt
	wg       sync.WaitGroup
}

type attempt struct {
	seq    *Sequencer
	cancel context.CancelFunc
}

// DispatcherOption customizes a Dispatcher.
type DispatcherOption func(*Dispatcher)

func WithDispatcherClock(c Clock) DispatcherOption {
	return func(d *Dispatcher) {
		if c != nil {
			d.clock = c
		}
	}
}

func WithDispatcherLogger(l *logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithSequencerOptions forwards options to every sequencer the dispatcher builds.
func WithSequencerOptions(opts ...Option) DispatcherOption {
	return func(d *Dispatcher) { d.seqOpts = append(d.seqOpts, opts...) }
}

func NewDispatcher(cfg Config, feed CandidateFeed, transport OfferTransport, sink OutcomeSink, opts ...DispatcherOption) (*Dispatcher, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if feed == nil || transport == nil || sink == nil {
		return nil, fmt.Errorf("%w: feed, transport and sink are required", ErrInvalidConfig)
	}

	d := &Dispatcher{
		cfg:       cfg,
		feed:      feed,
		transport: transport,
		sink:      sink,
		clock:     SystemClock(),
		log:       logger.Nop(),
		attempts:  make(map[string]*attempt),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// Begin starts an attempt for req and fetches its candidates in the background.
func (d *Dispatcher) Begin(ctx context.Context, req RideRequest) (Snapshot, error) {
	sink := OutcomeSinkFunc(func(ctx context.Context, out Outcome) { d.finish(ctx, out) })
	opts := append([]Option{WithClock(d.clock), WithLogger(d.log)}, d.seqOpts...)

	seq, err := NewSequencer(req, d.cfg, d.transport, sink, opts...)
	if err != nil {
		return Snapshot{}, err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	runCtx = d.log.WithBookingID(runCtx, req.BookingID)

	d.mu.Lock()
	if _, exists := d.attempts[req.BookingID]; exists {
		d.mu.Unlock()
		cancel()
		return Snapshot{}, fmt.Errorf("%w: %s", ErrAttemptExists, req.BookingID)
	}
	d.attempts[req.BookingID] = &attempt{seq: seq, cancel: cancel}
	d.mu.Unlock()

	if err := seq.Start(runCtx); err != nil {
		d.remove(req.BookingID)
		return Snapshot{}, err
	}

	d.wg.Add(1)
	go d.run(runCtx, seq)

	return seq.Snapshot(), nil
}

// Respond routes a driver response to its attempt.
func (d *Dispatcher) Respond(ctx context.Context, resp Response) error {
	if err := resp.Validate(); err != nil {
		return err
	}
	seq, ok := d.lookup(resp.BookingID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, resp.BookingID)
	}
	return seq.HandleResponse(ctx, resp)
}

// Cancel stops the attempt for bookingID.
func (d *Dispatcher) Cancel(ctx context.Context, bookingID, reason string) error {
	seq, ok := d.lookup(bookingID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAttemptNotFound, bookingID)
	}
	return seq.Cancel(ctx, reason)
}

func (d *Dispatcher) Snapshot(bookingID string) (Snapshot, error) {
	seq, ok := d.lookup(bookingID)
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %s", ErrAttemptNotFound, bookingID)
	}
	return seq.Snapshot(), nil
}

// Active returns the number of attempts whose outcome has not been stored yet.
func (d *Dispatcher) Active() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}

// Shutdown cancels every live attempt and waits for their feed loops to exit.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.mu.Lock()
	live := make([]*Sequencer, 0, len(d.attempts))
	for _, a := range d.attempts {
		live = append(live, a.seq)
	}
	d.mu.Unlock()

	for _, seq := range live {
		if err := seq.Cancel(ctx, ReasonServiceShutdown); err != nil && !errors.Is(err, ErrAttemptFinished) {
			d.log.Error(ctx, "shutdown_cancel_failed", "Failed to cancel attempt on shutdown", err,
				map[string]any{"booking_id": seq.Request().BookingID})
		}
	}

	waited := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
		d.log.Info(ctx, "dispatcher_stopped", "Dispatcher stopped", map[string]any{"cancelled": len(live)})
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run fetches the initial candidate list, then optionally keeps refreshing it
// while the attempt is offering.
func (d *Dispatcher) run(ctx context.Context, seq *Sequencer) {
	defer d.wg.Done()
	req := seq.Request()

	candidates, err := d.feed.NearbyCandidates(ctx, req.Category, req.Pickup)
	if err != nil {
		seq.failFeed(fmt.Errorf("nearby candidates: %w", err))
		return
	}
	if err := seq.DeliverCandidates(ctx, candidates); err != nil {
		seq.failFeed(err)
		return
	}

	if d.cfg.CandidateRefresh <= 0 {
		return
	}
	for {
		if !d.sleep(ctx, seq, d.cfg.CandidateRefresh) {
			return
		}
		if seq.Snapshot().State != StateOffering {
			continue
		}

		fresh, err := d.feed.NearbyCandidates(ctx, req.Category, req.Pickup)
		if err != nil {
			d.log.Error(ctx, "candidate_refresh_failed", "Failed to refresh candidates", err, nil)
			continue
		}
		if err := seq.DeliverCandidates(ctx, fresh); err != nil {
			d.log.Error(ctx, "candidate_refresh_rejected", "Refreshed candidate list rejected", err,
				map[string]any{"count": len(fresh)})
		}
	}
}

// sleep waits for wait on the dispatcher clock. It returns false once the
// attempt is over or ctx is done.
func (d *Dispatcher) sleep(ctx context.Context, seq *Sequencer, wait time.Duration) bool {
	tick := make(chan struct{})
	t := d.clock.AfterFunc(wait, func() { close(tick) })
	select {
	case <-tick:
		return true
	case <-seq.Done():
		t.Stop()
		return false
	case <-ctx.Done():
		t.Stop()
		return false
	}
}

// finish keeps the attempt registered until its outcome is stored, so a new
// attempt for the same booking cannot begin while the old one is settling.
func (d *Dispatcher) finish(ctx context.Context, out Outcome) {
	defer d.remove(out.BookingID)
	d.sink.Report(ctx, out)
}

func (d *Dispatcher) remove(bookingID string) {
	d.mu.Lock()
	a, ok := d.attempts[bookingID]
	delete(d.attempts, bookingID)
	d.mu.Unlock()
	if ok {
		a.cancel()
	}
}

func (d *Dispatcher) lookup(bookingID string) (*Sequencer, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.attempts[bookingID]
	if !ok {
		return nil, false
	}
	return a.seq, true
}
