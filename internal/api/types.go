package api

import (
	"github.com/google/uuid"

	"github.com/hanamidental/booking-service/internal/booking"
	"github.com/hanamidental/booking-service/internal/schedule"
)

type PreferenceRequest struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

type CreateAppointmentRequest struct {
	PatientName string              `json:"patient_name"`
	Phone       string              `json:"phone"`
	Email       string              `json:"email"`
	Age         *int                `json:"age,omitempty"`
	Notes       string              `json:"notes,omitempty"`
	Treatment   string              `json:"treatment"`
	Fee         string              `json:"fee,omitempty"`
	Preferences []PreferenceRequest `json:"preferences"`
}

type ConfirmAppointmentRequest struct {
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

type ModifyAppointmentRequest struct {
	Preferences []PreferenceRequest `json:"preferences"`
}

type PreferenceResponse struct {
	Rank     int    `json:"rank"`
	Date     string `json:"date"`
	TimeSlot string `json:"time_slot"`
}

type AppointmentResponse struct {
	ID              uuid.UUID            `json:"id"`
	PatientName     string               `json:"patient_name"`
	Phone           string               `json:"phone"`
	Email           string               `json:"email"`
	Age             *int                 `json:"age,omitempty"`
	Notes           string               `json:"notes,omitempty"`
	Treatment       string               `json:"treatment"`
	Fee             string               `json:"fee,omitempty"`
	Status          string               `json:"status"`
	AppointmentDate string               `json:"appointment_date"`
	ConfirmedDate   string               `json:"confirmed_date,omitempty"`
	ConfirmedSlot   string               `json:"confirmed_slot,omitempty"`
	Preferences     []PreferenceResponse `json:"preferences,omitempty"`
	NeedsFollowUp   bool                 `json:"needs_phone_follow_up,omitempty"`
}

type SlotResponse struct {
	TimeSlot     string `json:"time_slot"`
	Available    bool   `json:"available"`
	CurrentCount int    `json:"current_count"`
	MaxCapacity  int    `json:"max_capacity"`
}

type AvailabilityResponse struct {
	Date      string         `json:"date"`
	Treatment string         `json:"treatment"`
	Slots     []SlotResponse `json:"slots"`
}

type ScheduleEntryRequest struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type ScheduleMonthRequest struct {
	Entries []ScheduleEntryRequest `json:"entries"`
}

type ScheduleEntryResponse struct {
	DayOfWeek int    `json:"day_of_week"`
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type ScheduleMonthResponse struct {
	Year    int                     `json:"year"`
	Month   int                     `json:"month"`
	Entries []ScheduleEntryResponse `json:"entries"`
}

type OverrideRequest struct {
	Start     string `json:"start"`
	End       string `json:"end"`
	Available bool   `json:"available"`
}

type ErrorResponse struct {
	Error        string               `json:"error"`
	Details      string               `json:"details,omitempty"`
	Fields       []booking.FieldError `json:"fields,omitempty"`
	Reason       string               `json:"reason,omitempty"`
	CurrentCount int                  `json:"current_count,omitempty"`
	MaxCapacity  int                  `json:"max_capacity,omitempty"`
}

func appointmentResponse(a *booking.Appointment, prefs []booking.Preference, needsFollowUp bool) AppointmentResponse {
	resp := AppointmentResponse{
		ID:              a.ID,
		PatientName:     a.PatientName,
		Phone:           a.Phone,
		Email:           a.Email,
		Age:             a.Age,
		Notes:           a.Notes,
		Treatment:       a.TreatmentName,
		Fee:             a.Fee,
		Status:          string(a.Status),
		AppointmentDate: schedule.DateString(a.AppointmentDate),
		NeedsFollowUp:   needsFollowUp,
	}
	if a.ConfirmedDate != nil {
		resp.ConfirmedDate = schedule.DateString(*a.ConfirmedDate)
	}
	if a.ConfirmedSlot != nil {
		resp.ConfirmedSlot = *a.ConfirmedSlot
	}
	for _, p := range prefs {
		resp.Preferences = append(resp.Preferences, PreferenceResponse{
			Rank:     p.Rank,
			Date:     schedule.DateString(p.Date),
			TimeSlot: p.TimeSlot,
		})
	}
	return resp
}
