package store

import (
	"time"

	"servicebay/pkg/domain"
)

type serviceEntity struct {
	ID                       string    `bson:"_id"`
	Name                     string    `bson:"name"`
	Description              string    `bson:"description"`
	BasePrice                float64   `bson:"base_price"`
	EstimatedDurationMinutes int       `bson:"estimated_duration"`
	Category                 string    `bson:"category"`
	VehicleType              string    `bson:"vehicle_type"`
	CreatedAt                time.Time `bson:"created_at"`
}

func serviceToEntity(s domain.Service) serviceEntity {
	return serviceEntity{
		ID:                       s.ID,
		Name:                     s.Name,
		Description:              s.Description,
		BasePrice:                s.BasePrice,
		EstimatedDurationMinutes: s.EstimatedDurationMinutes,
		Category:                 string(s.Category),
		VehicleType:              string(s.VehicleType),
		CreatedAt:                s.CreatedAt.UTC(),
	}
}

func (e serviceEntity) toDomain() domain.Service {
	return domain.Service{
		ID:                       e.ID,
		Name:                     e.Name,
		Description:              e.Description,
		BasePrice:                e.BasePrice,
		EstimatedDurationMinutes: e.EstimatedDurationMinutes,
		Category:                 domain.ServiceCategory(e.Category),
		VehicleType:              domain.VehicleType(e.VehicleType),
		CreatedAt:                e.CreatedAt,
	}
}

type appointmentEntity struct {
	ID              string    `bson:"_id"`
	UserID          string    `bson:"user_id"`
	ServiceID       string    `bson:"service_id"`
	VehicleType     string    `bson:"vehicle_type"`
	VehicleModel    string    `bson:"vehicle_model"`
	VehiclePlate    string    `bson:"vehicle_plate"`
	ScheduledDate   time.Time `bson:"scheduled_date"`
	PickupRequired  bool      `bson:"pickup_required"`
	PickupAddress   string    `bson:"pickup_address,omitempty"`
	DropoffRequired bool      `bson:"dropoff_required"`
	DropoffAddress  string    `bson:"dropoff_address,omitempty"`
	Status          string    `bson:"status"`
	Notes           string    `bson:"notes,omitempty"`
	TotalPrice      float64   `bson:"total_price"`
	CreatedAt       time.Time `bson:"created_at"`
}

func appointmentToEntity(a domain.Appointment) appointmentEntity {
	return appointmentEntity{
		ID:              a.ID,
		UserID:          a.UserID,
		ServiceID:       a.ServiceID,
		VehicleType:     string(a.VehicleType),
		VehicleModel:    a.VehicleModel,
		VehiclePlate:    a.VehiclePlate,
		ScheduledDate:   a.ScheduledDate.UTC(),
		PickupRequired:  a.PickupRequired,
		PickupAddress:   a.PickupAddress,
		DropoffRequired: a.DropoffRequired,
		DropoffAddress:  a.DropoffAddress,
		Status:          string(a.Status),
		Notes:           a.Notes,
		TotalPrice:      a.TotalPrice,
		CreatedAt:       a.CreatedAt.UTC(),
	}
}

func (e appointmentEntity) toDomain() domain.Appointment {
	return domain.Appointment{
		ID:              e.ID,
		UserID:          e.UserID,
		ServiceID:       e.ServiceID,
		VehicleType:     domain.VehicleType(e.VehicleType),
		VehicleModel:    e.VehicleModel,
		VehiclePlate:    e.VehiclePlate,
		ScheduledDate:   e.ScheduledDate,
		PickupRequired:  e.PickupRequired,
		PickupAddress:   e.PickupAddress,
		DropoffRequired: e.DropoffRequired,
		DropoffAddress:  e.DropoffAddress,
		Status:          domain.AppointmentStatus(e.Status),
		Notes:           e.Notes,
		TotalPrice:      e.TotalPrice,
		CreatedAt:       e.CreatedAt,
	}
}

type partEntity struct {
	Name     string  `bson:"name"`
	Cost     float64 `bson:"cost"`
	Quantity int     `bson:"quantity"`
}

type reportEntity struct {
	ID                string       `bson:"_id"`
	AppointmentID     string       `bson:"appointment_id"`
	UserID            string       `bson:"user_id"`
	ServiceDate       time.Time    `bson:"service_date"`
	ServicesPerformed []string     `bson:"services_performed"`
	PartsReplaced     []partEntity `bson:"parts_replaced"`
	LaborCost         float64      `bson:"labor_cost"`
	TotalCost         float64      `bson:"total_cost"`
	NextServiceDue    *time.Time   `bson:"next_service_due,omitempty"`
	Recommendations   string       `bson:"recommendations,omitempty"`
	MechanicNotes     string       `bson:"mechanic_notes,omitempty"`
	AIGeneratedReport string       `bson:"ai_generated_report,omitempty"`
	GeneratedAt       *time.Time   `bson:"generated_at,omitempty"`
	CreatedAt         time.Time    `bson:"created_at"`
}

func reportToEntity(r domain.ServiceReport) reportEntity {
	parts := make([]partEntity, 0, len(r.PartsReplaced))
	for _, p := range r.PartsReplaced {
		parts = append(parts, partEntity(p))
	}
	return reportEntity{
		ID:                r.ID,
		AppointmentID:     r.AppointmentID,
		UserID:            r.UserID,
		ServiceDate:       r.ServiceDate.UTC(),
		ServicesPerformed: r.ServicesPerformed,
		PartsReplaced:     parts,
		LaborCost:         r.LaborCost,
		TotalCost:         r.TotalCost,
		NextServiceDue:    r.NextServiceDue,
		Recommendations:   r.Recommendations,
		MechanicNotes:     r.MechanicNotes,
		AIGeneratedReport: r.AIGeneratedReport,
		GeneratedAt:       r.GeneratedAt,
		CreatedAt:         r.CreatedAt.UTC(),
	}
}

func (e reportEntity) toDomain() domain.ServiceReport {
	parts := make([]domain.Part, 0, len(e.PartsReplaced))
	for _, p := range e.PartsReplaced {
		parts = append(parts, domain.Part(p))
	}
	return domain.ServiceReport{
		ID:                e.ID,
		AppointmentID:     e.AppointmentID,
		UserID:            e.UserID,
		ServiceDate:       e.ServiceDate,
		ServicesPerformed: e.ServicesPerformed,
		PartsReplaced:     parts,
		LaborCost:         e.LaborCost,
		TotalCost:         e.TotalCost,
		NextServiceDue:    e.NextServiceDue,
		Recommendations:   e.Recommendations,
		MechanicNotes:     e.MechanicNotes,
		AIGeneratedReport: e.AIGeneratedReport,
		GeneratedAt:       e.GeneratedAt,
		CreatedAt:         e.CreatedAt,
	}
}

type reminderEntity struct {
	ID            string    `bson:"_id"`
	UserID        string    `bson:"user_id"`
	AppointmentID string    `bson:"appointment_id,omitempty"`
	Type          string    `bson:"type"`
	Message       string    `bson:"message"`
	ScheduledFor  time.Time `bson:"scheduled_for"`
	Sent          bool      `bson:"sent"`
	CreatedAt     time.Time `bson:"created_at"`
}

func reminderToEntity(r domain.Reminder) reminderEntity {
	return reminderEntity{
		ID:            r.ID,
		UserID:        r.UserID,
		AppointmentID: r.AppointmentID,
		Type:          string(r.Type),
		Message:       r.Message,
		ScheduledFor:  r.ScheduledFor.UTC(),
		Sent:          r.Sent,
		CreatedAt:     r.CreatedAt.UTC(),
	}
}

func (e reminderEntity) toDomain() domain.Reminder {
	return domain.Reminder{
		ID:            e.ID,
		UserID:        e.UserID,
		AppointmentID: e.AppointmentID,
		Type:          domain.ReminderType(e.Type),
		Message:       e.Message,
		ScheduledFor:  e.ScheduledFor,
		Sent:          e.Sent,
		CreatedAt:     e.CreatedAt,
	}
}
