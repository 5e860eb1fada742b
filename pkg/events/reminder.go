package events

import (
	"time"

	"servicebay/pkg/domain"
)

// ReminderDue is the broker message for a reminder ready for delivery.
type ReminderDue struct {
	ReminderID    string              `json:"reminderId"`
	UserID        string              `json:"userId"`
	AppointmentID string              `json:"appointmentId,omitempty"`
	Type          domain.ReminderType `json:"type"`
	Message       string              `json:"message"`
	ScheduledFor  time.Time           `json:"scheduledFor"`
}

// NewReminderDue builds the event for r.
func NewReminderDue(r domain.Reminder) ReminderDue {
	return ReminderDue{
		ReminderID:    r.ID,
		UserID:        r.UserID,
		AppointmentID: r.AppointmentID,
		Type:          r.Type,
		Message:       r.Message,
		ScheduledFor:  r.ScheduledFor,
	}
}
