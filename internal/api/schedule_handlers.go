package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hanamidental/booking-service/internal/schedule"
)

// Schedule-setup surface for the admin dashboard: weekday rules are edited
// a month at a time, specific dates via overrides.

func getScheduleMonthHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, ok := parseYearMonth(w, r)
		if !ok {
			return
		}

		entries, err := svc.MonthEntries(r.Context(), year, month)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := ScheduleMonthResponse{Year: year, Month: month, Entries: make([]ScheduleEntryResponse, 0, len(entries))}
		for _, e := range entries {
			resp.Entries = append(resp.Entries, ScheduleEntryResponse{
				DayOfWeek: int(e.DayOfWeek),
				Start:     schedule.FormatClock(e.Start),
				End:       schedule.FormatClock(e.End),
				Available: e.Available,
			})
		}

		writeJSON(w, http.StatusOK, resp)
	}
}

func putScheduleMonthHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		year, month, ok := parseYearMonth(w, r)
		if !ok {
			return
		}

		var req ScheduleMonthRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		entries := make([]schedule.Entry, 0, len(req.Entries))
		for _, e := range req.Entries {
			start, err := schedule.ParseClock(e.Start)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
				return
			}
			end, err := schedule.ParseClock(e.End)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
				return
			}
			entries = append(entries, schedule.Entry{
				Year:      year,
				Month:     month,
				DayOfWeek: time.Weekday(e.DayOfWeek),
				Start:     start,
				End:       end,
				Available: e.Available,
			})
		}

		if err := svc.ReplaceMonth(r.Context(), year, month, entries); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule", err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func putOverrideHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := schedule.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		var req OverrideRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		ov := schedule.Override{Date: date, Available: req.Available}
		if req.Available {
			if ov.Start, err = schedule.ParseClock(req.Start); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
				return
			}
			if ov.End, err = schedule.ParseClock(req.End); err != nil {
				writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
				return
			}
		}

		saved, err := svc.UpsertOverride(r.Context(), ov)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_override", err.Error())
			return
		}

		writeJSON(w, http.StatusOK, OverrideRequest{
			Start:     schedule.FormatClock(saved.Start),
			End:       schedule.FormatClock(saved.End),
			Available: saved.Available,
		})
	}
}

func deleteOverrideHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date, err := schedule.ParseDate(chi.URLParam(r, "date"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}

		if err := svc.DeleteOverrides(r.Context(), date); err != nil {
			if errors.Is(err, schedule.ErrOverrideNotFound) {
				writeError(w, http.StatusNotFound, "override_not_found", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func parseYearMonth(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year < 2000 || year > 2200 {
		writeError(w, http.StatusBadRequest, "invalid_year", "year must be a 4-digit year")
		return 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		writeError(w, http.StatusBadRequest, "invalid_month", "month must be 1-12")
		return 0, 0, false
	}
	return year, month, true
}
