package store

import (
	"errors"
	"time"

	"servicebay/pkg/domain"
)

var (
	// ErrReportExists is returned when an appointment already has a report.
	ErrReportExists = errors.New("report already exists for appointment")
	// ErrNotFound is returned by mutations whose target row does not exist.
	ErrNotFound = errors.New("record not found")
)

// Store defines persistence for the catalog, appointments, reports, and
// reminders. Every method is atomic on its own; the multi-write workflows
// (booking with its reminder, completing with a report) are single calls.
type Store interface {
	// catalog
	SeedServices(services []domain.Service) (int, error)
	ListServices() ([]domain.Service, error)
	ListServicesByCategory(category domain.ServiceCategory) ([]domain.Service, error)
	GetService(id string) (domain.Service, bool, error)

	// appointments
	BookAppointment(appt domain.Appointment, reminder domain.Reminder) error
	GetAppointment(id string) (domain.Appointment, bool, error)
	ListAppointmentsByUser(userID string) ([]domain.Appointment, error)
	SetAppointmentStatus(id string, status domain.AppointmentStatus) error

	// reports
	CompleteWithReport(report domain.ServiceReport, reminder *domain.Reminder) error
	GetReport(id string) (domain.ServiceReport, bool, error)
	GetReportByAppointment(appointmentID string) (domain.ServiceReport, bool, error)
	ListReportsByUser(userID string) ([]domain.ServiceReport, error)
	AttachAIReport(reportID, text string, generatedAt time.Time) error

	// reminders
	ListRemindersByUser(userID string) ([]domain.Reminder, error)
	ListPendingReminders(after, upTo time.Time) ([]domain.Reminder, error)
}
