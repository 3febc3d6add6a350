package contracts

// Exchanges
const (
	ExchangeBookingTopic = "booking_topic"
	ExchangeDriverTopic  = "driver_topic"
)

// Queues
const (
	QueueBookingStatus   = "booking_status"
	QueueDriverResponses = "driver_responses"
	QueueDriverStatus    = "driver_status"
)

// Routing patterns
const (
	RouteBookingStatusPrefix = "booking.status."  // {status}
	RouteDriverRespPrefix    = "driver.response." // {booking_id}
	RouteDriverStatusPrefix  = "driver.status."   // {driver_id}
)

// Producers
const (
	ProducerDispatchService = "dispatch-service"
	ProducerDriverGateway   = "driver-gateway"
)
