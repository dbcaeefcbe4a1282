package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/schedule"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}

func availabilityHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		date, err := schedule.ParseDate(q.Get("date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		treatment := q.Get("treatment")
		if treatment == "" {
			writeError(w, http.StatusBadRequest, "missing_treatment", "treatment is required")
			return
		}

		duration := 0
		if v := q.Get("duration"); v != "" {
			duration, err = strconv.Atoi(v)
			if err != nil || duration < 0 {
				writeError(w, http.StatusBadRequest, "invalid_duration", "duration must be a non-negative number of minutes")
				return
			}
		}

		slots, err := svc.Availability(r.Context(), date, treatment, duration)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := AvailabilityResponse{
			Date:      schedule.DateString(date),
			Treatment: treatment,
			Slots:     make([]SlotResponse, 0, len(slots)),
		}
		for _, s := range slots {
			resp.Slots = append(resp.Slots, SlotResponse{
				TimeSlot:     s.Slot.String(),
				Available:    s.Available,
				CurrentCount: s.CurrentCount,
				MaxCapacity:  s.MaxCapacity,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func createAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		prefs, fieldErrs := parsePreferences(req.Preferences)
		if fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Fields: fieldErrs})
			return
		}

		detail, err := svc.Create(r.Context(), booking.CreateInput{
			PatientName:   req.PatientName,
			Phone:         req.Phone,
			Email:         req.Email,
			Age:           req.Age,
			Notes:         req.Notes,
			TreatmentName: req.Treatment,
			Fee:           req.Fee,
			Preferences:   prefs,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, appointmentResponse(&detail.Appointment, detail.Preferences, false))
	}
}

func getAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		detail, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(&detail.Appointment, detail.Preferences, false))
	}
}

func listAppointmentsHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		filter := booking.ListFilter{Status: booking.Status(q.Get("status"))}

		if v := q.Get("date"); v != "" {
			date, err := schedule.ParseDate(v)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
				return
			}
			filter.Date = &date
		}
		if v := q.Get("limit"); v != "" {
			filter.Limit, _ = strconv.Atoi(v)
		}
		if v := q.Get("offset"); v != "" {
			filter.Offset, _ = strconv.Atoi(v)
		}

		appts, err := svc.List(r.Context(), filter)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AppointmentResponse, 0, len(appts))
		for i := range appts {
			resp = append(resp, appointmentResponse(&appts[i], nil, false))
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func confirmAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req ConfirmAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := schedule.ParseDate(req.Date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		appt, err := svc.Confirm(r.Context(), id, date, req.TimeSlot)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(appt, nil, false))
	}
}

func modifyAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		var req ModifyAppointmentRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		prefs, fieldErrs := parsePreferences(req.Preferences)
		if fieldErrs != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Fields: fieldErrs})
			return
		}

		detail, err := svc.Modify(r.Context(), id, prefs)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(&detail.Appointment, detail.Preferences, false))
	}
}

func cancelAppointmentHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := parseAppointmentID(w, r)
		if !ok {
			return
		}

		result, err := svc.Cancel(r.Context(), id, time.Now())
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, appointmentResponse(result.Appointment, nil, result.NeedsPhoneFollowUp))
	}
}

func parseAppointmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_appointment_id", "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

func parsePreferences(reqs []PreferenceRequest) ([]booking.PreferenceInput, []booking.FieldError) {
	var fields []booking.FieldError
	prefs := make([]booking.PreferenceInput, 0, len(reqs))

	for i, p := range reqs {
		date, err := schedule.ParseDate(p.Date)
		if err != nil {
			fields = append(fields, booking.FieldError{
				Field:   "preferences[" + strconv.Itoa(i) + "].date",
				Message: "must be YYYY-MM-DD",
			})
			continue
		}
		prefs = append(prefs, booking.PreferenceInput{Date: date, TimeSlot: p.TimeSlot})
	}

	if fields != nil {
		return nil, fields
	}
	return prefs, nil
}

func handleBookingError(w http.ResponseWriter, err error) {
	var ve *booking.ValidationError
	var capErr *booking.CapacityExceededError

	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation_failed", Fields: ve.Fields})
	case errors.As(err, &capErr):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:        "confirm_rejected",
			Reason:       "capacity_exceeded",
			Details:      capErr.Error(),
			CurrentCount: capErr.CurrentCount,
			MaxCapacity:  capErr.MaxCapacity,
		})
	case errors.Is(err, booking.ErrPatientConflict):
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:   "confirm_rejected",
			Reason:  "patient_conflict",
			Details: err.Error(),
		})
	case errors.Is(err, booking.ErrAppointmentNotFound):
		writeError(w, http.StatusNotFound, "appointment_not_found", err.Error())
	case errors.Is(err, booking.ErrAppointmentCancelled):
		writeError(w, http.StatusConflict, "appointment_cancelled", err.Error())
	case errors.Is(err, booking.ErrSlotBusy):
		writeError(w, http.StatusConflict, "slot_being_confirmed", "slot is currently being confirmed, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
