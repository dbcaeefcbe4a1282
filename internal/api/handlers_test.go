package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/notify"
	"github.com/hanamidental/booking-service/internal/schedule"
)

// inlineLocker runs the confirm critical section without Redis.
type inlineLocker struct{}

func (inlineLocker) WithSlotLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()

	schedRepo := schedule.NewMemoryRepository()
	schedSvc := schedule.NewService(schedRepo, 30*time.Minute)
	// Mondays in March 2025, morning block only.
	err := schedSvc.ReplaceMonth(context.Background(), 2025, 3, []schedule.Entry{
		{DayOfWeek: time.Monday, Start: 600, End: 720, Available: true}, // 10:00-12:00
	})
	require.NoError(t, err)

	repo := booking.NewMemoryRepository()
	eval := booking.NewEvaluator(repo, booking.DefaultCapacityPolicy())
	bookings := booking.NewService(repo, schedSvc, eval, inlineLocker{}, notify.NewLogNotifier(zerolog.Nop()), zerolog.Nop(), 72*time.Hour, "desk@hanami.example")

	return NewRouter(RouterConfig{
		Bookings: bookings,
		Schedule: schedSvc,
		Logger:   zerolog.Nop(),
		Env:      "test",
		Version:  "test",
	})
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), "body: %s", rec.Body.String())
	return v
}

func createRequest(email string) CreateAppointmentRequest {
	return CreateAppointmentRequest{
		PatientName: "山田 花子",
		Phone:       "090-1234-5678",
		Email:       email,
		Treatment:   "初診の方【無料相談】",
		Preferences: []PreferenceRequest{
			{Date: "2025-03-10", TimeSlot: "10:00-10:30"},
			{Date: "2025-03-17", TimeSlot: "11:00-11:30"},
		},
	}
}

func createAppointment(t *testing.T, h http.Handler, email string) AppointmentResponse {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/appointments", createRequest(email))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[AppointmentResponse](t, rec)
}

func TestHealthLive(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/health/live", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[LivenessResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "test", resp.Env)
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestCreateAppointment(t *testing.T) {
	h := newTestRouter(t)

	resp := createAppointment(t, h, "hanako@example.com")
	assert.Equal(t, "pending", resp.Status)
	assert.Equal(t, "2025-03-10", resp.AppointmentDate)
	assert.Empty(t, resp.ConfirmedDate)
	require.Len(t, resp.Preferences, 2)
	assert.Equal(t, 1, resp.Preferences[0].Rank)
	assert.Equal(t, "10:00-10:30", resp.Preferences[0].TimeSlot)
}

func TestCreateAppointment_Validation(t *testing.T) {
	h := newTestRouter(t)

	t.Run("malformed json", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/appointments", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad preference date", func(t *testing.T) {
		body := createRequest("a@example.com")
		body.Preferences[0].Date = "March 10th"
		rec := doJSON(t, h, http.MethodPost, "/appointments", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "validation_failed", resp.Error)
		require.NotEmpty(t, resp.Fields)
		assert.Equal(t, "preferences[0].date", resp.Fields[0].Field)
	})

	t.Run("missing fields", func(t *testing.T) {
		body := createRequest("")
		body.PatientName = ""
		rec := doJSON(t, h, http.MethodPost, "/appointments", body)
		require.Equal(t, http.StatusBadRequest, rec.Code)

		resp := decode[ErrorResponse](t, rec)
		assert.Equal(t, "validation_failed", resp.Error)
		fieldNames := make([]string, 0, len(resp.Fields))
		for _, f := range resp.Fields {
			fieldNames = append(fieldNames, f.Field)
		}
		assert.Contains(t, fieldNames, "patient_name")
		assert.Contains(t, fieldNames, "email")
	})
}

func TestAvailability(t *testing.T) {
	h := newTestRouter(t)

	// One consultation request pending on the first slot.
	createAppointment(t, h, "hanako@example.com")

	rec := doJSON(t, h, http.MethodGet, "/availability?date=2025-03-10&treatment=初診の方【無料相談】", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[AvailabilityResponse](t, rec)
	assert.Equal(t, "2025-03-10", resp.Date)
	require.Len(t, resp.Slots, 4)

	assert.Equal(t, "10:00-10:30", resp.Slots[0].TimeSlot)
	assert.False(t, resp.Slots[0].Available)
	assert.Equal(t, 1, resp.Slots[0].CurrentCount)
	assert.Equal(t, 1, resp.Slots[0].MaxCapacity)

	for _, s := range resp.Slots[1:] {
		assert.True(t, s.Available, s.TimeSlot)
		assert.Zero(t, s.CurrentCount, s.TimeSlot)
	}
}

func TestAvailability_BadQuery(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodGet, "/availability?date=tomorrow&treatment=x", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/availability?date=2025-03-10", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "missing_treatment", decode[ErrorResponse](t, rec).Error)
}

func TestConfirmAppointment(t *testing.T) {
	h := newTestRouter(t)
	created := createAppointment(t, h, "hanako@example.com")

	rec := doJSON(t, h, http.MethodPost, "/appointments/"+created.ID.String()+"/confirm",
		ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "confirmed", resp.Status)
	assert.Equal(t, "2025-03-10", resp.ConfirmedDate)
	assert.Equal(t, "10:00-10:30", resp.ConfirmedSlot)
}

func TestConfirmAppointment_CapacityExceeded(t *testing.T) {
	h := newTestRouter(t)

	first := createAppointment(t, h, "a@example.com")
	rec := doJSON(t, h, http.MethodPost, "/appointments/"+first.ID.String()+"/confirm",
		ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
	require.Equal(t, http.StatusOK, rec.Code)

	second := createAppointment(t, h, "b@example.com")
	rec = doJSON(t, h, http.MethodPost, "/appointments/"+second.ID.String()+"/confirm",
		ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
	require.Equal(t, http.StatusConflict, rec.Code)

	resp := decode[ErrorResponse](t, rec)
	assert.Equal(t, "confirm_rejected", resp.Error)
	assert.Equal(t, "capacity_exceeded", resp.Reason)
	assert.Equal(t, 1, resp.CurrentCount)
	assert.Equal(t, 1, resp.MaxCapacity)
}

func TestConfirmAppointment_PatientConflict(t *testing.T) {
	h := newTestRouter(t)

	first := createAppointment(t, h, "hanako@example.com")
	rec := doJSON(t, h, http.MethodPost, "/appointments/"+first.ID.String()+"/confirm",
		ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Same patient, different treatment, same slot.
	body := createRequest("hanako@example.com")
	body.Treatment = "ホワイトニング"
	rec = doJSON(t, h, http.MethodPost, "/appointments", body)
	require.Equal(t, http.StatusCreated, rec.Code)
	second := decode[AppointmentResponse](t, rec)

	rec = doJSON(t, h, http.MethodPost, "/appointments/"+second.ID.String()+"/confirm",
		ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "patient_conflict", decode[ErrorResponse](t, rec).Reason)
}

func TestConfirmAppointment_Errors(t *testing.T) {
	h := newTestRouter(t)

	t.Run("unknown id", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/appointments/00000000-0000-0000-0000-000000000001/confirm",
			ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.Equal(t, "appointment_not_found", decode[ErrorResponse](t, rec).Error)
	})

	t.Run("malformed id", func(t *testing.T) {
		rec := doJSON(t, h, http.MethodPost, "/appointments/not-a-uuid/confirm",
			ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("bad date", func(t *testing.T) {
		created := createAppointment(t, h, "c@example.com")
		rec := doJSON(t, h, http.MethodPost, "/appointments/"+created.ID.String()+"/confirm",
			ConfirmAppointmentRequest{Date: "someday", TimeSlot: "10:00-10:30"})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestModifyAppointment(t *testing.T) {
	h := newTestRouter(t)
	created := createAppointment(t, h, "hanako@example.com")

	rec := doJSON(t, h, http.MethodPost, "/appointments/"+created.ID.String()+"/confirm",
		ConfirmAppointmentRequest{Date: "2025-03-10", TimeSlot: "10:00-10:30"})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, h, http.MethodPost, "/appointments/"+created.ID.String()+"/modify",
		ModifyAppointmentRequest{Preferences: []PreferenceRequest{
			{Date: "2025-03-17", TimeSlot: "11:30-12:00"},
		}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[AppointmentResponse](t, rec)
	assert.Equal(t, "pending", resp.Status)
	assert.Empty(t, resp.ConfirmedDate)
	assert.Empty(t, resp.ConfirmedSlot)
	assert.Equal(t, "2025-03-17", resp.AppointmentDate)
	require.Len(t, resp.Preferences, 1)
	assert.Equal(t, "11:30-12:00", resp.Preferences[0].TimeSlot)
}

func TestCancelAppointment(t *testing.T) {
	h := newTestRouter(t)
	created := createAppointment(t, h, "hanako@example.com")

	rec := doJSON(t, h, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)

	// Terminal: a second cancel conflicts, but the record is still readable.
	rec = doJSON(t, h, http.MethodPost, "/appointments/"+created.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "appointment_cancelled", decode[ErrorResponse](t, rec).Error)

	rec = doJSON(t, h, http.MethodGet, "/appointments/"+created.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "cancelled", decode[AppointmentResponse](t, rec).Status)
}

func TestListAppointments(t *testing.T) {
	h := newTestRouter(t)
	createAppointment(t, h, "a@example.com")
	createAppointment(t, h, "b@example.com")

	rec := doJSON(t, h, http.MethodGet, "/appointments?status=pending", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]AppointmentResponse](t, rec), 2)

	rec = doJSON(t, h, http.MethodGet, "/appointments?status=confirmed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]AppointmentResponse](t, rec))
}

func TestScheduleMonthRoundTrip(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPut, "/schedule/2025/4", ScheduleMonthRequest{
		Entries: []ScheduleEntryRequest{
			{DayOfWeek: int(time.Wednesday), Start: "09:00", End: "13:00", Available: true},
			{DayOfWeek: int(time.Wednesday), Start: "14:30", End: "18:00", Available: true},
		},
	})
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/schedule/2025/4", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decode[ScheduleMonthResponse](t, rec)
	assert.Equal(t, 2025, resp.Year)
	assert.Equal(t, 4, resp.Month)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "09:00", resp.Entries[0].Start)
	assert.Equal(t, "13:00", resp.Entries[0].End)
}

func TestScheduleMonth_RejectsOverlap(t *testing.T) {
	h := newTestRouter(t)

	rec := doJSON(t, h, http.MethodPut, "/schedule/2025/4", ScheduleMonthRequest{
		Entries: []ScheduleEntryRequest{
			{DayOfWeek: int(time.Monday), Start: "09:00", End: "13:00", Available: true},
			{DayOfWeek: int(time.Monday), Start: "12:00", End: "17:00", Available: true},
		},
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_schedule", decode[ErrorResponse](t, rec).Error)
}

func TestOverrideClosesDay(t *testing.T) {
	h := newTestRouter(t)

	// An unavailable override closes an otherwise open Monday.
	rec := doJSON(t, h, http.MethodPut, "/schedule/overrides/2025-03-10", OverrideRequest{Available: false})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = doJSON(t, h, http.MethodGet, "/availability?date=2025-03-10&treatment=クリーニング", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[AvailabilityResponse](t, rec).Slots)

	// Removing the override restores the weekday rules.
	rec = doJSON(t, h, http.MethodDelete, "/schedule/overrides/2025-03-10", nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, h, http.MethodGet, "/availability?date=2025-03-10&treatment=クリーニング", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[AvailabilityResponse](t, rec).Slots, 4)

	// Deleting again is a 404.
	rec = doJSON(t, h, http.MethodDelete, "/schedule/overrides/2025-03-10", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
