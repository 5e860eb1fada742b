package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"servicebay/pkg/domain"
)

const (
	servicesCollection     = "services"
	appointmentsCollection = "appointments"
	reportsCollection      = "service_reports"
	remindersCollection    = "reminders"

	mongoOpTimeout = 10 * time.Second
)

// MongoStore implements Store on MongoDB. Multi-document writes run in a
// session transaction, so the deployment must be a replica set.
type MongoStore struct {
	client       *mongo.Client
	services     *mongo.Collection
	appointments *mongo.Collection
	reports      *mongo.Collection
	reminders    *mongo.Collection
}

// NewMongoStore connects, pings the primary, and ensures indexes.
func NewMongoStore(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	db := client.Database(database)
	s := &MongoStore{
		client:       client,
		services:     db.Collection(servicesCollection),
		appointments: db.Collection(appointmentsCollection),
		reports:      db.Collection(reportsCollection),
		reminders:    db.Collection(remindersCollection),
	}
	if err := s.ensureIndexes(pingCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := map[*mongo.Collection][]mongo.IndexModel{
		s.services: {
			{Keys: bson.D{{Key: "name", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "category", Value: 1}}},
		},
		s.appointments: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "scheduled_date", Value: 1}}},
		},
		s.reports: {
			{Keys: bson.D{{Key: "appointment_id", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		s.reminders: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
			{Keys: bson.D{{Key: "sent", Value: 1}, {Key: "scheduled_for", Value: 1}}},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("ensure %s indexes: %w", coll.Name(), err)
		}
	}
	return nil
}

func (s *MongoStore) withTransaction(fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)
	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx)
	})
	return err
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), mongoOpTimeout)
}

// SeedServices inserts services only when the catalog is empty. The unique
// name index makes a concurrent seeder lose cleanly.
func (s *MongoStore) SeedServices(services []domain.Service) (int, error) {
	inserted := 0
	err := s.withTransaction(func(ctx context.Context) error {
		count, err := s.services.CountDocuments(ctx, bson.M{})
		if err != nil {
			return err
		}
		if count > 0 || len(services) == 0 {
			return nil
		}
		docs := lo.Map(services, func(svc domain.Service, _ int) any {
			return serviceToEntity(svc)
		})
		if _, err := s.services.InsertMany(ctx, docs); err != nil {
			return err
		}
		inserted = len(docs)
		return nil
	})
	if mongo.IsDuplicateKeyError(err) {
		return 0, nil
	}
	return inserted, err
}

// ListServices returns the catalog ordered by creation.
func (s *MongoStore) ListServices() ([]domain.Service, error) {
	return s.listServices(bson.M{})
}

// ListServicesByCategory filters the catalog by category.
func (s *MongoStore) ListServicesByCategory(category domain.ServiceCategory) ([]domain.Service, error) {
	return s.listServices(bson.M{"category": string(category)})
}

func (s *MongoStore) listServices(filter bson.M) ([]domain.Service, error) {
	var ents []serviceEntity
	if err := findAll(s.services, filter, bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}, &ents); err != nil {
		return nil, err
	}
	return lo.Map(ents, func(e serviceEntity, _ int) domain.Service { return e.toDomain() }), nil
}

// GetService retrieves a service by ID.
func (s *MongoStore) GetService(id string) (domain.Service, bool, error) {
	var ent serviceEntity
	ok, err := findOne(s.services, bson.M{"_id": id}, &ent)
	if err != nil || !ok {
		return domain.Service{}, ok, err
	}
	return ent.toDomain(), true, nil
}

// BookAppointment inserts the appointment and its reminder in one transaction.
func (s *MongoStore) BookAppointment(appt domain.Appointment, reminder domain.Reminder) error {
	return s.withTransaction(func(ctx context.Context) error {
		if _, err := s.appointments.InsertOne(ctx, appointmentToEntity(appt)); err != nil {
			return err
		}
		_, err := s.reminders.InsertOne(ctx, reminderToEntity(reminder))
		return err
	})
}

// GetAppointment retrieves an appointment by ID.
func (s *MongoStore) GetAppointment(id string) (domain.Appointment, bool, error) {
	var ent appointmentEntity
	ok, err := findOne(s.appointments, bson.M{"_id": id}, &ent)
	if err != nil || !ok {
		return domain.Appointment{}, ok, err
	}
	return ent.toDomain(), true, nil
}

// ListAppointmentsByUser returns a user's appointments, newest first.
func (s *MongoStore) ListAppointmentsByUser(userID string) ([]domain.Appointment, error) {
	var ents []appointmentEntity
	if err := findAll(s.appointments, bson.M{"user_id": userID}, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, &ents); err != nil {
		return nil, err
	}
	return lo.Map(ents, func(e appointmentEntity, _ int) domain.Appointment { return e.toDomain() }), nil
}

// SetAppointmentStatus patches the status field.
func (s *MongoStore) SetAppointmentStatus(id string, status domain.AppointmentStatus) error {
	ctx, cancel := opContext()
	defer cancel()
	res, err := s.appointments.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteWithReport inserts the report, completes its appointment, and
// stores the optional reminder in one transaction.
func (s *MongoStore) CompleteWithReport(report domain.ServiceReport, reminder *domain.Reminder) error {
	err := s.withTransaction(func(ctx context.Context) error {
		if _, err := s.reports.InsertOne(ctx, reportToEntity(report)); err != nil {
			return err
		}
		res, err := s.appointments.UpdateOne(ctx,
			bson.M{"_id": report.AppointmentID},
			bson.M{"$set": bson.M{"status": string(domain.StatusCompleted)}})
		if err != nil {
			return err
		}
		if res.MatchedCount == 0 {
			return ErrNotFound
		}
		if reminder != nil {
			if _, err := s.reminders.InsertOne(ctx, reminderToEntity(*reminder)); err != nil {
				return err
			}
		}
		return nil
	})
	if mongo.IsDuplicateKeyError(err) {
		return ErrReportExists
	}
	return err
}

// GetReport retrieves a report by ID.
func (s *MongoStore) GetReport(id string) (domain.ServiceReport, bool, error) {
	return s.findReport(bson.M{"_id": id})
}

// GetReportByAppointment retrieves the report attached to an appointment.
func (s *MongoStore) GetReportByAppointment(appointmentID string) (domain.ServiceReport, bool, error) {
	return s.findReport(bson.M{"appointment_id": appointmentID})
}

func (s *MongoStore) findReport(filter bson.M) (domain.ServiceReport, bool, error) {
	var ent reportEntity
	ok, err := findOne(s.reports, filter, &ent)
	if err != nil || !ok {
		return domain.ServiceReport{}, ok, err
	}
	return ent.toDomain(), true, nil
}

// ListReportsByUser returns a user's reports, newest first.
func (s *MongoStore) ListReportsByUser(userID string) ([]domain.ServiceReport, error) {
	var ents []reportEntity
	if err := findAll(s.reports, bson.M{"user_id": userID}, bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}, &ents); err != nil {
		return nil, err
	}
	return lo.Map(ents, func(e reportEntity, _ int) domain.ServiceReport { return e.toDomain() }), nil
}

// AttachAIReport sets generated text on an existing report.
func (s *MongoStore) AttachAIReport(reportID, text string, generatedAt time.Time) error {
	ctx, cancel := opContext()
	defer cancel()
	res, err := s.reports.UpdateOne(ctx, bson.M{"_id": reportID}, bson.M{"$set": bson.M{
		"ai_generated_report": text,
		"generated_at":        generatedAt.UTC(),
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListRemindersByUser returns a user's reminders, latest scheduled first.
func (s *MongoStore) ListRemindersByUser(userID string) ([]domain.Reminder, error) {
	return s.listReminders(bson.M{"user_id": userID}, -1)
}

// ListPendingReminders returns unsent reminders with after < scheduled_for <= upTo.
func (s *MongoStore) ListPendingReminders(after, upTo time.Time) ([]domain.Reminder, error) {
	return s.listReminders(bson.M{
		"sent":          false,
		"scheduled_for": bson.M{"$gt": after.UTC(), "$lte": upTo.UTC()},
	}, 1)
}

func (s *MongoStore) listReminders(filter bson.M, direction int) ([]domain.Reminder, error) {
	var ents []reminderEntity
	if err := findAll(s.reminders, filter, bson.D{{Key: "scheduled_for", Value: direction}}, &ents); err != nil {
		return nil, err
	}
	return lo.Map(ents, func(e reminderEntity, _ int) domain.Reminder { return e.toDomain() }), nil
}

func findOne(coll *mongo.Collection, filter bson.M, out any) (bool, error) {
	ctx, cancel := opContext()
	defer cancel()
	if err := coll.FindOne(ctx, filter).Decode(out); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	return true, nil
}

func findAll(coll *mongo.Collection, filter bson.M, sort bson.D, out any) error {
	ctx, cancel := opContext()
	defer cancel()
	cur, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return fmt.Errorf("find %s: %w", coll.Name(), err)
	}
	defer cur.Close(ctx)
	if err := cur.All(ctx, out); err != nil {
		return fmt.Errorf("decode %s: %w", coll.Name(), err)
	}
	return nil
}
