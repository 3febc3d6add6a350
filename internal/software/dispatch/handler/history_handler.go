package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ----- Handler: GET /riders/{rider_id}/bookings -----

func (handler *DispatchHTTPHandler) handleRiderBookings(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	riderID := strings.TrimSpace(r.PathValue("rider_id"))
	if riderID == "" {
		handler.httpError(ctx, w, http.StatusBadRequest, "rider_id is required", errors.New("missing rider_id"))
		return
	}

	limit, err := queryLimit(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusBadRequest, "limit must be a positive integer", err)
		return
	}

	caller, err := callerRiderID(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceCallTimeout)
	defer cancel()

	res, err := handler.svc.RiderBookings(ctxWithTimeout, riderID, caller, limit)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
