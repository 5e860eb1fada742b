package store

import (
	"time"

	"gorm.io/datatypes"
)

// GORM models used for persistence.
type ServiceModel struct {
	ID                       string    `gorm:"primaryKey"`
	Name                     string    `gorm:"not null"`
	Description              string    `gorm:"type:text"`
	BasePrice                float64   `gorm:"type:numeric(12,2);not null"`
	EstimatedDurationMinutes int       `gorm:"not null"`
	Category                 string    `gorm:"not null;index"`
	VehicleType              string    `gorm:"not null"`
	CreatedAt                time.Time `gorm:"not null;index"`
}

type AppointmentModel struct {
	ID              string    `gorm:"primaryKey"`
	UserID          string    `gorm:"not null;index"`
	ServiceID       string    `gorm:"not null"`
	VehicleType     string    `gorm:"not null"`
	VehicleModel    string    `gorm:"not null"`
	VehiclePlate    string    `gorm:"not null"`
	ScheduledDate   time.Time `gorm:"not null;index"`
	PickupRequired  bool      `gorm:"not null"`
	PickupAddress   string
	DropoffRequired bool `gorm:"not null"`
	DropoffAddress  string
	Status          string    `gorm:"not null;index"`
	Notes           string    `gorm:"type:text"`
	TotalPrice      float64   `gorm:"type:numeric(12,2);not null"`
	CreatedAt       time.Time `gorm:"not null;index"`
}

type ReportModel struct {
	ID                string         `gorm:"primaryKey"`
	AppointmentID     string         `gorm:"not null;uniqueIndex"`
	UserID            string         `gorm:"not null;index"`
	ServiceDate       time.Time      `gorm:"not null"`
	ServicesPerformed datatypes.JSON `gorm:"type:jsonb"`
	PartsReplaced     datatypes.JSON `gorm:"type:jsonb"`
	LaborCost         float64        `gorm:"type:numeric(12,2);not null"`
	TotalCost         float64        `gorm:"type:numeric(12,2);not null"`
	NextServiceDue    *time.Time
	Recommendations   string `gorm:"type:text"`
	MechanicNotes     string `gorm:"type:text"`
	AIGeneratedReport string `gorm:"type:text"`
	GeneratedAt       *time.Time
	CreatedAt         time.Time `gorm:"not null;index"`
}

// ReminderModel carries a composite (sent, scheduled_for) index for the
// due-reminder scan.
type ReminderModel struct {
	ID            string    `gorm:"primaryKey"`
	UserID        string    `gorm:"not null;index"`
	AppointmentID string    `gorm:"index"`
	Type          string    `gorm:"not null"`
	Message       string    `gorm:"not null"`
	ScheduledFor  time.Time `gorm:"not null;index:idx_reminder_due,priority:2"`
	Sent          bool      `gorm:"not null;index:idx_reminder_due,priority:1"`
	CreatedAt     time.Time `gorm:"not null"`
}
