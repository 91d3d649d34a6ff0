// Package tickets exposes intake, accept and availability over HTTP for
// channels that are not MQTT based (hotline operators, web forms).
package tickets

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kilianp07/floodrescue/core/dispatch"
	"github.com/kilianp07/floodrescue/core/fault"
	"github.com/kilianp07/floodrescue/core/intake"
)

// Intake submits rescue requests.
type Intake interface {
	Submit(ctx context.Context, req intake.Request) (intake.Outcome, error)
	Merge(ctx context.Context, ticketID string, req intake.Request) (intake.Outcome, error)
}

// Dispatcher handles accepts and availability checks.
type Dispatcher interface {
	Accept(ctx context.Context, ticketID, rescuerID string) (dispatch.AssignmentResult, error)
	IsTicketAvailable(ctx context.Context, ticketID string) (dispatch.Availability, error)
}

// NewHandler routes:
//
//	POST /api/tickets
//	POST /api/tickets/{id}/merge
//	POST /api/tickets/{id}/accept   {"rescuer_id": "..."}
//	GET  /api/tickets/{id}/availability
func NewHandler(in Intake, d Dispatcher) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/tickets", func(w http.ResponseWriter, r *http.Request) {
		var req intake.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		out, err := in.Submit(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}
		status := http.StatusCreated
		if out.Kind != fault.KindNone {
			status = statusFor(out.Kind)
		}
		writeJSON(w, status, out)
	})
	mux.HandleFunc("POST /api/tickets/{id}/merge", func(w http.ResponseWriter, r *http.Request) {
		var req intake.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid body", http.StatusBadRequest)
			return
		}
		out, err := in.Merge(r.Context(), r.PathValue("id"), req)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, statusFor(out.Kind), out)
	})
	mux.HandleFunc("POST /api/tickets/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RescuerID string `json:"rescuer_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.RescuerID == "" {
			http.Error(w, "rescuer_id is required", http.StatusBadRequest)
			return
		}
		res, err := d.Accept(r.Context(), r.PathValue("id"), body.RescuerID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, statusFor(res.Kind), res)
	})
	mux.HandleFunc("GET /api/tickets/{id}/availability", func(w http.ResponseWriter, r *http.Request) {
		av, err := d.IsTicketAvailable(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, statusFor(av.Kind), av)
	})
	return mux
}

func statusFor(k fault.Kind) int {
	switch k {
	case fault.KindNone:
		return http.StatusOK
	case fault.KindNotFound:
		return http.StatusNotFound
	case fault.KindInvalidState, fault.KindDuplicateRequest:
		return http.StatusConflict
	}
	return http.StatusServiceUnavailable
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, intake.ErrInvalidRequest):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case fault.Retryable(err):
		w.Header().Set("Retry-After", "1")
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
