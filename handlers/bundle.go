package handlers

// HandlerBundle groups the endpoint handlers handed to the router.
type HandlerBundle struct {
	Reservations *ReservationHandler
}
