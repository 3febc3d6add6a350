package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

// --- Request DTO (HTTP boundary) ---

type cancelMatchingRequest struct {
	Reason string `json:"reason"`
}

// --- Handler: POST /bookings/{booking_id}/cancel ---

func (handler *DispatchHTTPHandler) handleCancelMatching(w http.ResponseWriter, r *http.Request) {
	ctx := handler.withReqID(r.Context(), r)

	// limit the body size
	r.Body = http.MaxBytesReader(w, r.Body, 256<<10) // 256 KiB
	defer r.Body.Close()

	bookingID, ok := handler.bookingIDFrom(ctx, w, r)
	if !ok {
		return
	}
	ctx = handler.logger.WithBookingID(ctx, bookingID)

	// the body is optional; when present it must be JSON
	var req cancelMatchingRequest
	if r.ContentLength != 0 {
		if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
			handler.httpError(ctx, w, http.StatusUnsupportedMediaType, "Content-Type must be application/json", nil)
			return
		}
		dec := json.NewDecoder(r.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				handler.httpError(ctx, w, http.StatusRequestEntityTooLarge, "request body too large", err)
				return
			}
			handler.httpError(ctx, w, http.StatusBadRequest, "invalid JSON: "+err.Error(), err)
			return
		}
	}

	riderID, err := callerRiderID(r)
	if err != nil {
		handler.httpError(ctx, w, http.StatusUnauthorized, "missing auth claims", err)
		return
	}

	ctxWithTimeout, cancel := context.WithTimeout(ctx, serviceCallTimeout)
	defer cancel()

	res, err := handler.svc.CancelMatching(ctxWithTimeout, bookingID, riderID, req.Reason)
	if err != nil {
		handler.serviceError(ctxWithTimeout, w, err)
		return
	}

	handler.jsonResponse(ctxWithTimeout, w, http.StatusOK, res)
}
