package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/samber/lo"

	"servicebay/internal/util"
	"servicebay/pkg/domain"
)

// AppointmentInput is what a customer submits when booking.
type AppointmentInput struct {
	ServiceID       string    `json:"serviceId"`
	VehicleType     string    `json:"vehicleType"`
	VehicleModel    string    `json:"vehicleModel"`
	VehiclePlate    string    `json:"vehiclePlate"`
	ScheduledDate   time.Time `json:"scheduledDate"`
	PickupRequired  bool      `json:"pickupRequired"`
	PickupAddress   string    `json:"pickupAddress"`
	DropoffRequired bool      `json:"dropoffRequired"`
	DropoffAddress  string    `json:"dropoffAddress"`
	Notes           string    `json:"notes"`
}

// Overview splits a user's appointments for the dashboard.
type Overview struct {
	Upcoming       []domain.AppointmentDetail `json:"upcoming"`
	Past           []domain.AppointmentDetail `json:"past"`
	CompletedCount int                        `json:"completedCount"`
	TotalCount     int                        `json:"totalCount"`
}

const appointmentReminderLead = 24 * time.Hour

// CreateAppointment books a service and schedules the day-before reminder in
// the same store call. The price is copied from the catalog so later price
// changes do not affect existing bookings.
func (a *App) CreateAppointment(ctx context.Context, userID string, in AppointmentInput) (string, error) {
	if userID == "" {
		return "", ErrUnauthenticated
	}
	svc, ok, err := a.store.GetService(in.ServiceID)
	if err != nil {
		return "", fmt.Errorf("load service: %w", err)
	}
	if !ok {
		return "", fmt.Errorf("service %s: %w", in.ServiceID, ErrNotFound)
	}
	vehicle := domain.VehicleType(strings.ToLower(strings.TrimSpace(in.VehicleType)))
	if !vehicle.ValidForAppointment() {
		return "", invalidInput("vehicle type must be car or motorbike")
	}
	if in.ScheduledDate.IsZero() {
		return "", invalidInput("scheduled date required")
	}
	pickup := strings.TrimSpace(in.PickupAddress)
	if in.PickupRequired && pickup == "" {
		return "", invalidInput("pickup address required when pickup is requested")
	}
	dropoff := strings.TrimSpace(in.DropoffAddress)
	if in.DropoffRequired && dropoff == "" {
		return "", invalidInput("drop-off address required when drop-off is requested")
	}

	now := a.now().UTC()
	appt := domain.Appointment{
		ID:              util.NewEntityID(),
		UserID:          userID,
		ServiceID:       svc.ID,
		VehicleType:     vehicle,
		VehicleModel:    strings.TrimSpace(in.VehicleModel),
		VehiclePlate:    strings.TrimSpace(in.VehiclePlate),
		ScheduledDate:   in.ScheduledDate.UTC(),
		PickupRequired:  in.PickupRequired,
		DropoffRequired: in.DropoffRequired,
		Status:          domain.StatusScheduled,
		Notes:           strings.TrimSpace(in.Notes),
		TotalPrice:      svc.BasePrice,
		CreatedAt:       now,
	}
	if in.PickupRequired {
		appt.PickupAddress = pickup
	}
	if in.DropoffRequired {
		appt.DropoffAddress = dropoff
	}
	// A reminder time already in the past is kept as is; the dispatcher
	// window simply never selects it.
	reminder := domain.Reminder{
		ID:            util.NewEntityID(),
		UserID:        userID,
		AppointmentID: appt.ID,
		Type:          domain.ReminderAppointmentReminder,
		Message:       fmt.Sprintf("Your %s appointment is scheduled for tomorrow", svc.Name),
		ScheduledFor:  appt.ScheduledDate.Add(-appointmentReminderLead),
		CreatedAt:     now,
	}
	if err := a.store.BookAppointment(appt, reminder); err != nil {
		return "", fmt.Errorf("book appointment: %w", err)
	}
	util.LoggerFromContext(ctx).Info("appointment booked",
		"appointment_id", appt.ID,
		"service_id", svc.ID,
		"scheduled_date", appt.ScheduledDate,
	)
	return appt.ID, nil
}

// ListUserAppointments returns the caller's appointments, newest first,
// joined with their services. Anonymous callers get an empty list.
func (a *App) ListUserAppointments(_ context.Context, userID string) ([]domain.AppointmentDetail, error) {
	if userID == "" {
		return []domain.AppointmentDetail{}, nil
	}
	appts, err := a.store.ListAppointmentsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	lookup := a.serviceLookup()
	out := make([]domain.AppointmentDetail, 0, len(appts))
	for _, appt := range appts {
		svc, err := lookup(appt.ServiceID)
		if err != nil {
			return nil, fmt.Errorf("load service: %w", err)
		}
		out = append(out, domain.AppointmentDetail{Appointment: appt, Service: svc})
	}
	return out, nil
}

// UpdateAppointmentStatus moves an owned appointment to a new status, subject
// to the configured transition policy.
func (a *App) UpdateAppointmentStatus(ctx context.Context, userID, appointmentID, status string) error {
	if userID == "" {
		return ErrUnauthenticated
	}
	next, err := domain.ParseAppointmentStatus(status)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	appt, err := a.ownedAppointment(userID, appointmentID, false)
	if err != nil {
		return err
	}
	if err := a.policy.Allow(appt.Status, next); err != nil {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	if err := a.store.SetAppointmentStatus(appt.ID, next); err != nil {
		return mapStoreErr(err)
	}
	util.LoggerFromContext(ctx).Info("appointment status changed",
		"appointment_id", appt.ID,
		"from", appt.Status,
		"to", next,
	)
	return nil
}

// CancelAppointment is shorthand for moving an appointment to cancelled.
func (a *App) CancelAppointment(ctx context.Context, userID, appointmentID string) error {
	return a.UpdateAppointmentStatus(ctx, userID, appointmentID, string(domain.StatusCancelled))
}

// AppointmentOverview splits the caller's appointments at now: upcoming are
// still scheduled and in the future, everything else is past.
func (a *App) AppointmentOverview(ctx context.Context, userID string, now time.Time) (Overview, error) {
	details, err := a.ListUserAppointments(ctx, userID)
	if err != nil {
		return Overview{}, err
	}
	upcoming, past := lo.FilterReject(details, func(d domain.AppointmentDetail, _ int) bool {
		return d.Status == domain.StatusScheduled && d.ScheduledDate.After(now)
	})
	return Overview{
		Upcoming: upcoming,
		Past:     past,
		CompletedCount: lo.CountBy(details, func(d domain.AppointmentDetail) bool {
			return d.Status == domain.StatusCompleted
		}),
		TotalCount: len(details),
	}, nil
}
