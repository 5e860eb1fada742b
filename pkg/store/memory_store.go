package store

import (
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"

	"servicebay/pkg/domain"
)

// MemoryStore keeps everything in-process. Used for local runs and tests.
type MemoryStore struct {
	mu            sync.RWMutex
	services      map[string]domain.Service
	serviceOrder  []string
	appointments  map[string]domain.Appointment
	apptOrder     []string
	reports       map[string]domain.ServiceReport
	reportOrder   []string
	reportByAppt  map[string]string // appointment ID -> report ID
	reminders     map[string]domain.Reminder
	reminderOrder []string
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		services:     make(map[string]domain.Service),
		appointments: make(map[string]domain.Appointment),
		reports:      make(map[string]domain.ServiceReport),
		reportByAppt: make(map[string]string),
		reminders:    make(map[string]domain.Reminder),
	}
}

// SeedServices inserts services only when the catalog is empty.
func (m *MemoryStore) SeedServices(services []domain.Service) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.services) > 0 {
		return 0, nil
	}
	for _, svc := range services {
		m.services[svc.ID] = svc
		m.serviceOrder = append(m.serviceOrder, svc.ID)
	}
	return len(services), nil
}

// ListServices returns the catalog in insertion order.
func (m *MemoryStore) ListServices() ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(m.serviceOrder, m.services, nil), nil
}

// ListServicesByCategory filters the catalog by category.
func (m *MemoryStore) ListServicesByCategory(category domain.ServiceCategory) ([]domain.Service, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collect(m.serviceOrder, m.services, func(s domain.Service) bool {
		return s.Category == category
	}), nil
}

// GetService retrieves a service by ID.
func (m *MemoryStore) GetService(id string) (domain.Service, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	svc, ok := m.services[id]
	return svc, ok, nil
}

// BookAppointment stores the appointment together with its reminder.
func (m *MemoryStore) BookAppointment(appt domain.Appointment, reminder domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.appointments[appt.ID] = appt
	m.apptOrder = append(m.apptOrder, appt.ID)
	m.putReminder(reminder)
	return nil
}

// GetAppointment retrieves an appointment by ID.
func (m *MemoryStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	appt, ok := m.appointments[id]
	return appt, ok, nil
}

// ListAppointmentsByUser returns a user's appointments, newest first.
func (m *MemoryStore) ListAppointmentsByUser(userID string) ([]domain.Appointment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := collect(m.apptOrder, m.appointments, func(a domain.Appointment) bool {
		return a.UserID == userID
	})
	slices.Reverse(res)
	return res, nil
}

// SetAppointmentStatus patches the status field.
func (m *MemoryStore) SetAppointmentStatus(id string, status domain.AppointmentStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	appt, ok := m.appointments[id]
	if !ok {
		return ErrNotFound
	}
	appt.Status = status
	m.appointments[id] = appt
	return nil
}

// CompleteWithReport inserts the report, completes its appointment, and
// stores the optional follow-up reminder.
func (m *MemoryStore) CompleteWithReport(report domain.ServiceReport, reminder *domain.Reminder) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.reportByAppt[report.AppointmentID]; exists {
		return ErrReportExists
	}
	appt, ok := m.appointments[report.AppointmentID]
	if !ok {
		return ErrNotFound
	}
	m.reports[report.ID] = report.Clone()
	m.reportOrder = append(m.reportOrder, report.ID)
	m.reportByAppt[report.AppointmentID] = report.ID
	appt.Status = domain.StatusCompleted
	m.appointments[appt.ID] = appt
	if reminder != nil {
		m.putReminder(*reminder)
	}
	return nil
}

// GetReport retrieves a report by ID.
func (m *MemoryStore) GetReport(id string) (domain.ServiceReport, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.reports[id]
	return r.Clone(), ok, nil
}

// GetReportByAppointment retrieves the report attached to an appointment.
func (m *MemoryStore) GetReportByAppointment(appointmentID string) (domain.ServiceReport, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.reportByAppt[appointmentID]
	if !ok {
		return domain.ServiceReport{}, false, nil
	}
	r, ok := m.reports[id]
	return r.Clone(), ok, nil
}

// ListReportsByUser returns a user's reports, newest first.
func (m *MemoryStore) ListReportsByUser(userID string) ([]domain.ServiceReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := collect(m.reportOrder, m.reports, func(r domain.ServiceReport) bool {
		return r.UserID == userID
	})
	res = lo.Map(res, func(r domain.ServiceReport, _ int) domain.ServiceReport { return r.Clone() })
	slices.Reverse(res)
	return res, nil
}

// AttachAIReport sets generated text on an existing report.
func (m *MemoryStore) AttachAIReport(reportID, text string, generatedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reports[reportID]
	if !ok {
		return ErrNotFound
	}
	r.AIGeneratedReport = text
	r.GeneratedAt = lo.ToPtr(generatedAt)
	m.reports[reportID] = r
	return nil
}

// ListRemindersByUser returns a user's reminders, latest scheduled first.
func (m *MemoryStore) ListRemindersByUser(userID string) ([]domain.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := collect(m.reminderOrder, m.reminders, func(r domain.Reminder) bool {
		return r.UserID == userID
	})
	slices.SortStableFunc(res, func(a, b domain.Reminder) int {
		return b.ScheduledFor.Compare(a.ScheduledFor)
	})
	return res, nil
}

// ListPendingReminders returns unsent reminders with after < scheduledFor <= upTo.
func (m *MemoryStore) ListPendingReminders(after, upTo time.Time) ([]domain.Reminder, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := collect(m.reminderOrder, m.reminders, func(r domain.Reminder) bool {
		return !r.Sent && r.ScheduledFor.After(after) && !r.ScheduledFor.After(upTo)
	})
	slices.SortStableFunc(res, func(a, b domain.Reminder) int {
		return a.ScheduledFor.Compare(b.ScheduledFor)
	})
	return res, nil
}

func (m *MemoryStore) putReminder(r domain.Reminder) {
	m.reminders[r.ID] = r
	m.reminderOrder = append(m.reminderOrder, r.ID)
}

func collect[T any](order []string, items map[string]T, keep func(T) bool) []T {
	res := make([]T, 0, len(order))
	for _, id := range order {
		item, ok := items[id]
		if !ok {
			continue
		}
		if keep == nil || keep(item) {
			res = append(res, item)
		}
	}
	return res
}
