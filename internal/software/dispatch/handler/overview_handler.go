package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
)

// ----- Handler: GET /bookings/{booking_id}/events -----

func (handler *DispatchHTTPHandler) handleMatchEvents(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	bookingID, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	limit, err := queryLimit(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "limit must be a positive integer", err)
		return
	}

	riderID, err := callerRiderID(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceCallTimeout)
	defer cancel()

	res, err := handler.svc.MatchEvents(ctxWithTimeout, bookingID, riderID, limit)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}

// queryLimit reads the optional ?limit parameter; 0 means the service default.
func queryLimit(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("limit %d is not positive", n)
	}
	return n, nil
}

// ----- Handler: GET /admin/overview -----

func (handler *DispatchHTTPHandler) handleOverview(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceCallTimeout)
	defer cancel()

	res, err := handler.svc.Overview(ctxWithTimeout)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
