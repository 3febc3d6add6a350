package handler

import (
	"context"
	"net/http"
	"time"
)

const serviceCallTimeout = 5 * time.Second

// ----- Handler: POST /bookings/{booking_id}/match -----

func (handler *DispatchHTTPHandler) handleStartMatching(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	riderID, err := callerRiderID(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceCallTimeout)
	defer cancel()

	res, err := handler.svc.StartMatching(ctxWithTimeout, bookingID, riderID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusAccepted, res)
}

// ----- Handler: GET /bookings/{booking_id}/match -----

func (handler *DispatchHTTPHandler) handleMatchStatus(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	riderID, err := callerRiderID(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceCallTimeout)
	defer cancel()

	res, err := handler.svc.MatchStatus(ctxWithTimeout, bookingID, riderID)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
