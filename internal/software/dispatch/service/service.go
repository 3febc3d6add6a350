package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shipease/internal/general/logger"
	"shipease/internal/matching"
	"shipease/internal/ports"

	amqp "github.com/rabbitmq/amqp091-go"
)

// ResponseConsumer delivers driver responses from the broker.
type ResponseConsumer interface {
	ConsumeForever(ctx context.Context, queue, consumerTag string, prefetch int, handler func(context.Context, amqp.Delivery) error) error
}

// Deps are the collaborators of the dispatch service.
type Deps struct {
	Logger    *logger.Logger
	UoW       ports.UnitOfWork
	Bookings  ports.BookingRepository
	Events    ports.MatchEventRepository
	Publisher ports.MessagePublisher
	Notifier  ports.RiderNotifier
	Consumer  ResponseConsumer
	Feed      matching.CandidateFeed
	Transport matching.OfferTransport
	// Prefetch bounds unacknowledged driver responses held by the consumer.
	Prefetch int
}

type dispatchService struct {
	logger     *logger.Logger
	uow        ports.UnitOfWork
	bookings   ports.BookingRepository
	events     ports.MatchEventRepository
	pub        ports.MessagePublisher
	notifier   ports.RiderNotifier
	consumer   ResponseConsumer
	dispatcher *matching.Dispatcher
	prefetch   int

	retryBackoff []time.Duration
}

// NewDispatchService wires the matching dispatcher to persistence, the broker
// and the rider sockets.
func NewDispatchService(deps Deps, cfg matching.Config, opts ...matching.DispatcherOption) (ports.DispatchService, error) {
	if deps.UoW == nil || deps.Bookings == nil || deps.Events == nil {
		return nil, errors.New("dispatchservice: unit of work and repositories are required")
	}
	if deps.Publisher == nil || deps.Feed == nil || deps.Transport == nil {
		return nil, errors.New("dispatchservice: publisher, candidate feed and offer transport are required")
	}
	if deps.Logger == nil {
		deps.Logger = logger.Nop()
	}

	svc := &dispatchService{
		logger:   deps.Logger,
		uow:      deps.UoW,
		bookings: deps.Bookings,
		events:   deps.Events,
		pub:      deps.Publisher,
		notifier: deps.Notifier,
		consumer: deps.Consumer,
		prefetch: deps.Prefetch,

		retryBackoff: outcomeRetryBackoff,
	}

	transport := &auditedTransport{next: deps.Transport, svc: svc}
	sink := matching.OutcomeSinkFunc(svc.reportOutcome)
	opts = append([]matching.DispatcherOption{matching.WithDispatcherLogger(deps.Logger)}, opts...)

	d, err := matching.NewDispatcher(cfg, deps.Feed, transport, sink, opts...)
	if err != nil {
		return nil, fmt.Errorf("dispatchservice: %w", err)
	}
	svc.dispatcher = d

	return svc, nil
}

func (service *dispatchService) Shutdown(ctx context.Context) error {
	return service.dispatcher.Shutdown(ctx)
}
