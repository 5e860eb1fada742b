package domain

import (
	"slices"
	"time"
)

type ServiceCategory string

const (
	CategoryMaintenance ServiceCategory = "maintenance"
	CategoryRepair      ServiceCategory = "repair"
	CategoryWash        ServiceCategory = "wash"
	CategoryInspection  ServiceCategory = "inspection"
)

// Valid reports whether c is one of the known catalog categories.
func (c ServiceCategory) Valid() bool {
	switch c {
	case CategoryMaintenance, CategoryRepair, CategoryWash, CategoryInspection:
		return true
	}
	return false
}

type VehicleType string

const (
	VehicleCar       VehicleType = "car"
	VehicleMotorbike VehicleType = "motorbike"
	// VehicleBoth is only used by catalog entries.
	VehicleBoth VehicleType = "both"
)

// ValidForAppointment reports whether v can be booked. "both" is a catalog
// value and never describes a concrete vehicle.
func (v VehicleType) ValidForAppointment() bool {
	return v == VehicleCar || v == VehicleMotorbike
}

type ReminderType string

const (
	ReminderUpcomingService     ReminderType = "upcoming_service"
	ReminderAppointmentReminder ReminderType = "appointment_reminder"
)

type Service struct {
	ID                       string          `json:"id"`
	Name                     string          `json:"name"`
	Description              string          `json:"description"`
	BasePrice                float64         `json:"basePrice"`
	EstimatedDurationMinutes int             `json:"estimatedDuration"`
	Category                 ServiceCategory `json:"category"`
	VehicleType              VehicleType     `json:"vehicleType"`
	CreatedAt                time.Time       `json:"createdAt"`
}

type Appointment struct {
	ID              string            `json:"id"`
	UserID          string            `json:"userId"`
	ServiceID       string            `json:"serviceId"`
	VehicleType     VehicleType       `json:"vehicleType"`
	VehicleModel    string            `json:"vehicleModel"`
	VehiclePlate    string            `json:"vehiclePlate"`
	ScheduledDate   time.Time         `json:"scheduledDate"`
	PickupRequired  bool              `json:"pickupRequired"`
	PickupAddress   string            `json:"pickupAddress,omitempty"`
	DropoffRequired bool              `json:"dropoffRequired"`
	DropoffAddress  string            `json:"dropoffAddress,omitempty"`
	Status          AppointmentStatus `json:"status"`
	Notes           string            `json:"notes,omitempty"`
	TotalPrice      float64           `json:"totalPrice"`
	CreatedAt       time.Time         `json:"createdAt"`
}

// AppointmentDetail is an appointment joined with its catalog service.
// Service is nil when the referenced service no longer resolves.
type AppointmentDetail struct {
	Appointment
	Service *Service `json:"service"`
}

type Part struct {
	Name     string  `json:"name"`
	Cost     float64 `json:"cost"`
	Quantity int     `json:"quantity"`
}

type ServiceReport struct {
	ID                string     `json:"id"`
	AppointmentID     string     `json:"appointmentId"`
	UserID            string     `json:"userId"`
	ServiceDate       time.Time  `json:"serviceDate"`
	ServicesPerformed []string   `json:"servicesPerformed"`
	PartsReplaced     []Part     `json:"partsReplaced"`
	LaborCost         float64    `json:"laborCost"`
	TotalCost         float64    `json:"totalCost"`
	NextServiceDue    *time.Time `json:"nextServiceDue,omitempty"`
	Recommendations   string     `json:"recommendations,omitempty"`
	MechanicNotes     string     `json:"mechanicNotes,omitempty"`
	AIGeneratedReport string     `json:"aiGeneratedReport,omitempty"`
	GeneratedAt       *time.Time `json:"generatedAt,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// Clone returns a copy that shares no slices or pointers with r.
func (r ServiceReport) Clone() ServiceReport {
	r.ServicesPerformed = slices.Clone(r.ServicesPerformed)
	r.PartsReplaced = slices.Clone(r.PartsReplaced)
	if r.NextServiceDue != nil {
		due := *r.NextServiceDue
		r.NextServiceDue = &due
	}
	if r.GeneratedAt != nil {
		at := *r.GeneratedAt
		r.GeneratedAt = &at
	}
	return r
}

// HasAIContent reports whether the report already carries generated text.
func (r ServiceReport) HasAIContent() bool {
	return r.AIGeneratedReport != ""
}

// ReportDetail is a report joined with its appointment and service.
type ReportDetail struct {
	ServiceReport
	Appointment *Appointment `json:"appointment"`
	Service     *Service     `json:"service"`
}

type Reminder struct {
	ID            string       `json:"id"`
	UserID        string       `json:"userId"`
	AppointmentID string       `json:"appointmentId,omitempty"`
	Type          ReminderType `json:"type"`
	Message       string       `json:"message"`
	ScheduledFor  time.Time    `json:"scheduledFor"`
	Sent          bool         `json:"sent"`
	CreatedAt     time.Time    `json:"createdAt"`
}
