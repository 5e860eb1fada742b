package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"servicebay/pkg/domain"
)

const (
	migrateLockID int64 = 51820417
	seedLockID    int64 = 51820418
)

// GormStore implements Store using GORM + Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the DB and runs auto-migrations.
func NewGormStore(dsn string) (*GormStore, error) {
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := withMigrationLock(db, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&ServiceModel{}, &AppointmentModel{}, &ReportModel{}, &ReminderModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	}); err != nil {
		return nil, err
	}
	return &GormStore{db: db}, nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// SeedServices inserts services only when the catalog is empty. A
// transaction-scoped advisory lock serializes concurrent seeders.
func (s *GormStore) SeedServices(services []domain.Service) (int, error) {
	inserted := 0
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Exec("SELECT pg_advisory_xact_lock(?)", seedLockID).Error; err != nil {
			return fmt.Errorf("acquire seed lock: %w", err)
		}
		var count int64
		if err := tx.Model(&ServiceModel{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 || len(services) == 0 {
			return nil
		}
		models := make([]ServiceModel, 0, len(services))
		for _, svc := range services {
			models = append(models, serviceToModel(svc))
		}
		if err := tx.Create(&models).Error; err != nil {
			return err
		}
		inserted = len(models)
		return nil
	})
	return inserted, err
}

// ListServices returns the catalog ordered by creation.
func (s *GormStore) ListServices() ([]domain.Service, error) {
	return s.listServices()
}

// ListServicesByCategory filters the catalog by category.
func (s *GormStore) ListServicesByCategory(category domain.ServiceCategory) ([]domain.Service, error) {
	return s.listServices("category = ?", string(category))
}

func (s *GormStore) listServices(conds ...any) ([]domain.Service, error) {
	var models []ServiceModel
	tx := s.db.Order("created_at ASC").Order("id ASC")
	if len(conds) > 0 {
		tx = tx.Where(conds[0], conds[1:]...)
	}
	if err := tx.Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Service, 0, len(models))
	for _, m := range models {
		res = append(res, serviceFromModel(m))
	}
	return res, nil
}

// GetService retrieves a service by ID.
func (s *GormStore) GetService(id string) (domain.Service, bool, error) {
	var model ServiceModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Service{}, false, nil
		}
		return domain.Service{}, false, err
	}
	return serviceFromModel(model), true, nil
}

// BookAppointment inserts the appointment and its reminder in one transaction.
func (s *GormStore) BookAppointment(appt domain.Appointment, reminder domain.Reminder) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := appointmentToModel(appt)
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		rem := reminderToModel(reminder)
		return tx.Create(&rem).Error
	})
}

// GetAppointment retrieves an appointment by ID.
func (s *GormStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	var model AppointmentModel
	if err := s.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.Appointment{}, false, nil
		}
		return domain.Appointment{}, false, err
	}
	return appointmentFromModel(model), true, nil
}

// ListAppointmentsByUser returns a user's appointments, newest first.
func (s *GormStore) ListAppointmentsByUser(userID string) ([]domain.Appointment, error) {
	var models []AppointmentModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Appointment, 0, len(models))
	for _, m := range models {
		res = append(res, appointmentFromModel(m))
	}
	return res, nil
}

// SetAppointmentStatus patches the status column.
func (s *GormStore) SetAppointmentStatus(id string, status domain.AppointmentStatus) error {
	res := s.db.Model(&AppointmentModel{}).Where("id = ?", id).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteWithReport inserts the report, completes its appointment, and
// stores the optional reminder in one transaction. The unique index on
// appointment_id turns a lost race into ErrReportExists.
func (s *GormStore) CompleteWithReport(report domain.ServiceReport, reminder *domain.Reminder) error {
	model, err := reportToModel(report)
	if err != nil {
		return err
	}
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrReportExists
			}
			return err
		}
		res := tx.Model(&AppointmentModel{}).
			Where("id = ?", report.AppointmentID).
			Update("status", string(domain.StatusCompleted))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if reminder != nil {
			rem := reminderToModel(*reminder)
			if err := tx.Create(&rem).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// GetReport retrieves a report by ID.
func (s *GormStore) GetReport(id string) (domain.ServiceReport, bool, error) {
	return s.firstReport("id = ?", id)
}

// GetReportByAppointment retrieves the report attached to an appointment.
func (s *GormStore) GetReportByAppointment(appointmentID string) (domain.ServiceReport, bool, error) {
	return s.firstReport("appointment_id = ?", appointmentID)
}

func (s *GormStore) firstReport(query string, arg string) (domain.ServiceReport, bool, error) {
	var model ReportModel
	if err := s.db.Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ServiceReport{}, false, nil
		}
		return domain.ServiceReport{}, false, err
	}
	report, err := reportFromModel(model)
	if err != nil {
		return domain.ServiceReport{}, false, err
	}
	return report, true, nil
}

// ListReportsByUser returns a user's reports, newest first.
func (s *GormStore) ListReportsByUser(userID string) ([]domain.ServiceReport, error) {
	var models []ReportModel
	if err := s.db.Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.ServiceReport, 0, len(models))
	for _, m := range models {
		report, err := reportFromModel(m)
		if err != nil {
			return nil, err
		}
		res = append(res, report)
	}
	return res, nil
}

// AttachAIReport sets generated text on an existing report.
func (s *GormStore) AttachAIReport(reportID, text string, generatedAt time.Time) error {
	res := s.db.Model(&ReportModel{}).Where("id = ?", reportID).Updates(map[string]any{
		"ai_generated_report": text,
		"generated_at":        generatedAt.UTC(),
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRemindersByUser returns a user's reminders, latest scheduled first.
func (s *GormStore) ListRemindersByUser(userID string) ([]domain.Reminder, error) {
	return s.listReminders("scheduled_for DESC", "user_id = ?", userID)
}

// ListPendingReminders returns unsent reminders with after < scheduled_for <= upTo.
func (s *GormStore) ListPendingReminders(after, upTo time.Time) ([]domain.Reminder, error) {
	return s.listReminders("scheduled_for ASC",
		"sent = ? AND scheduled_for > ? AND scheduled_for <= ?", false, after.UTC(), upTo.UTC())
}

func (s *GormStore) listReminders(order string, conds ...any) ([]domain.Reminder, error) {
	var models []ReminderModel
	if err := s.db.Where(conds[0], conds[1:]...).Order(order).Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Reminder, 0, len(models))
	for _, m := range models {
		res = append(res, reminderFromModel(m))
	}
	return res, nil
}

func serviceToModel(s domain.Service) ServiceModel {
	return ServiceModel{
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

func serviceFromModel(m ServiceModel) domain.Service {
	return domain.Service{
		ID:                       m.ID,
		Name:                     m.Name,
		Description:              m.Description,
		BasePrice:                m.BasePrice,
		EstimatedDurationMinutes: m.EstimatedDurationMinutes,
		Category:                 domain.ServiceCategory(m.Category),
		VehicleType:              domain.VehicleType(m.VehicleType),
		CreatedAt:                m.CreatedAt,
	}
}

func appointmentToModel(a domain.Appointment) AppointmentModel {
	return AppointmentModel{
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

func appointmentFromModel(m AppointmentModel) domain.Appointment {
	return domain.Appointment{
		ID:              m.ID,
		UserID:          m.UserID,
		ServiceID:       m.ServiceID,
		VehicleType:     domain.VehicleType(m.VehicleType),
		VehicleModel:    m.VehicleModel,
		VehiclePlate:    m.VehiclePlate,
		ScheduledDate:   m.ScheduledDate,
		PickupRequired:  m.PickupRequired,
		PickupAddress:   m.PickupAddress,
		DropoffRequired: m.DropoffRequired,
		DropoffAddress:  m.DropoffAddress,
		Status:          domain.AppointmentStatus(m.Status),
		Notes:           m.Notes,
		TotalPrice:      m.TotalPrice,
		CreatedAt:       m.CreatedAt,
	}
}

func reportToModel(r domain.ServiceReport) (ReportModel, error) {
	performed, err := json.Marshal(r.ServicesPerformed)
	if err != nil {
		return ReportModel{}, fmt.Errorf("encode services performed: %w", err)
	}
	parts, err := json.Marshal(r.PartsReplaced)
	if err != nil {
		return ReportModel{}, fmt.Errorf("encode parts replaced: %w", err)
	}
	return ReportModel{
		ID:                r.ID,
		AppointmentID:     r.AppointmentID,
		UserID:            r.UserID,
		ServiceDate:       r.ServiceDate.UTC(),
		ServicesPerformed: datatypes.JSON(performed),
		PartsReplaced:     datatypes.JSON(parts),
		LaborCost:         r.LaborCost,
		TotalCost:         r.TotalCost,
		NextServiceDue:    r.NextServiceDue,
		Recommendations:   r.Recommendations,
		MechanicNotes:     r.MechanicNotes,
		AIGeneratedReport: r.AIGeneratedReport,
		GeneratedAt:       r.GeneratedAt,
		CreatedAt:         r.CreatedAt.UTC(),
	}, nil
}

func reportFromModel(m ReportModel) (domain.ServiceReport, error) {
	report := domain.ServiceReport{
		ID:                m.ID,
		AppointmentID:     m.AppointmentID,
		UserID:            m.UserID,
		ServiceDate:       m.ServiceDate,
		LaborCost:         m.LaborCost,
		TotalCost:         m.TotalCost,
		NextServiceDue:    m.NextServiceDue,
		Recommendations:   m.Recommendations,
		MechanicNotes:     m.MechanicNotes,
		AIGeneratedReport: m.AIGeneratedReport,
		GeneratedAt:       m.GeneratedAt,
		CreatedAt:         m.CreatedAt,
	}
	if len(m.ServicesPerformed) > 0 {
		if err := json.Unmarshal(m.ServicesPerformed, &report.ServicesPerformed); err != nil {
			return domain.ServiceReport{}, fmt.Errorf("decode services performed: %w", err)
		}
	}
	if len(m.PartsReplaced) > 0 {
		if err := json.Unmarshal(m.PartsReplaced, &report.PartsReplaced); err != nil {
			return domain.ServiceReport{}, fmt.Errorf("decode parts replaced: %w", err)
		}
	}
	return report, nil
}

func reminderToModel(r domain.Reminder) ReminderModel {
	return ReminderModel{
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

func reminderFromModel(m ReminderModel) domain.Reminder {
	return domain.Reminder{
		ID:            m.ID,
		UserID:        m.UserID,
		AppointmentID: m.AppointmentID,
		Type:          domain.ReminderType(m.Type),
		Message:       m.Message,
		ScheduledFor:  m.ScheduledFor,
		Sent:          m.Sent,
		CreatedAt:     m.CreatedAt,
	}
}
