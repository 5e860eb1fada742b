package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicebay/pkg/domain"
)

func TestSeedCatalogIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	n, err := env.app.SeedCatalog(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)

	services, err := env.app.ListServices()
	require.NoError(t, err)
	require.Len(t, services, 6)
	assert.Equal(t, "Regular Oil Change", services[0].Name)
	assert.Equal(t, "Annual Safety Inspection", services[5].Name)
}

func TestSeedCatalogAsIsStaffOnly(t *testing.T) {
	env := newTestEnv(t, withStaff("staff-1"))
	ctx := context.Background()

	_, err := env.app.SeedCatalogAs(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = env.app.SeedCatalogAs(ctx, "customer-1")
	assert.ErrorIs(t, err, ErrForbidden)

	n, err := env.app.SeedCatalogAs(ctx, "staff-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestListServicesByCategory(t *testing.T) {
	env := newTestEnv(t)
	wash, err := env.app.ListServicesByCategory("wash")
	require.NoError(t, err)
	require.Len(t, wash, 2)
	for _, svc := range wash {
		assert.Equal(t, domain.CategoryWash, svc.Category)
	}

	_, err = env.app.ListServicesByCategory("detailing")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestGetServiceMissing(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.GetService("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAppointmentSchedulesReminder(t *testing.T) {
	env := newTestEnv(t)
	svc := env.service(t, "Brake Service")
	when := testNow.Add(72 * time.Hour)

	id, err := env.app.CreateAppointment(context.Background(), "user-1", AppointmentInput{
		ServiceID:      svc.ID,
		VehicleType:    "Motorbike",
		VehicleModel:   "Ducati Monster",
		VehiclePlate:   "MB-1234",
		ScheduledDate:  when,
		PickupRequired: true,
		PickupAddress:  " 12 High Street ",
		DropoffAddress: "ignored",
	})
	require.NoError(t, err)

	appt, ok, err := env.store.GetAppointment(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, domain.StatusScheduled, appt.Status)
	assert.Equal(t, svc.BasePrice, appt.TotalPrice)
	assert.Equal(t, domain.VehicleMotorbike, appt.VehicleType)
	assert.Equal(t, "12 High Street", appt.PickupAddress)
	assert.Empty(t, appt.DropoffAddress)

	reminders, err := env.app.ListUserReminders(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, reminders, 1)
	r := reminders[0]
	assert.Equal(t, domain.ReminderAppointmentReminder, r.Type)
	assert.Equal(t, "Your Brake Service appointment is scheduled for tomorrow", r.Message)
	assert.True(t, r.ScheduledFor.Equal(when.Add(-24*time.Hour)))
	assert.False(t, r.Sent)
	assert.Equal(t, id, r.AppointmentID)
}

func TestCreateAppointmentAcceptsPastReminderTime(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.app.CreateAppointment(context.Background(), "user-1", AppointmentInput{
		ServiceID:     env.service(t, "Full Service").ID,
		VehicleType:   "car",
		ScheduledDate: testNow.Add(2 * time.Hour),
	})
	require.NoError(t, err)
	reminders, _ := env.app.ListUserReminders(context.Background(), "user-1")
	require.Len(t, reminders, 1)
	assert.True(t, reminders[0].ScheduledFor.Before(testNow))
}

func TestCreateAppointmentErrors(t *testing.T) {
	env := newTestEnv(t)
	svcID := env.service(t, "Full Service").ID
	valid := AppointmentInput{ServiceID: svcID, VehicleType: "car", ScheduledDate: testNow.Add(time.Hour)}

	cases := []struct {
		name   string
		userID string
		mutate func(*AppointmentInput)
		want   error
	}{
		{"anonymous", "", func(*AppointmentInput) {}, ErrUnauthenticated},
		{"unknown service", "u", func(in *AppointmentInput) { in.ServiceID = "missing" }, ErrNotFound},
		{"catalog-only vehicle type", "u", func(in *AppointmentInput) { in.VehicleType = "both" }, ErrInvalidInput},
		{"unknown vehicle type", "u", func(in *AppointmentInput) { in.VehicleType = "truck" }, ErrInvalidInput},
		{"pickup without address", "u", func(in *AppointmentInput) { in.PickupRequired = true }, ErrInvalidInput},
		{"dropoff without address", "u", func(in *AppointmentInput) { in.DropoffRequired = true; in.DropoffAddress = "  " }, ErrInvalidInput},
		{"no date", "u", func(in *AppointmentInput) { in.ScheduledDate = time.Time{} }, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := valid
			tc.mutate(&in)
			_, err := env.app.CreateAppointment(context.Background(), tc.userID, in)
			assert.ErrorIs(t, err, tc.want)
		})
	}
	appts, _ := env.store.ListAppointmentsByUser("u")
	assert.Empty(t, appts)
}

func TestListUserAppointmentsNewestFirstWithService(t *testing.T) {
	env := newTestEnv(t)
	first := env.book(t, "user-1", "Regular Oil Change")
	second := env.book(t, "user-1", "Premium Car Wash")
	env.book(t, "user-2", "Brake Service")

	list, err := env.app.ListUserAppointments(context.Background(), "user-1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	require.NotNil(t, list[0].Service)
	assert.Equal(t, "Premium Car Wash", list[0].Service.Name)

	anon, err := env.app.ListUserAppointments(context.Background(), "")
	require.NoError(t, err)
	assert.NotNil(t, anon)
	assert.Empty(t, anon)
}

func TestUpdateAppointmentStatus(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()

	assert.ErrorIs(t, env.app.UpdateAppointmentStatus(ctx, "", appt.ID, "completed"), ErrUnauthenticated)
	assert.ErrorIs(t, env.app.UpdateAppointmentStatus(ctx, "intruder", appt.ID, "completed"), ErrNotFound)
	assert.ErrorIs(t, env.app.UpdateAppointmentStatus(ctx, "owner", "missing", "completed"), ErrNotFound)
	assert.ErrorIs(t, env.app.UpdateAppointmentStatus(ctx, "owner", appt.ID, "done"), ErrInvalidInput)

	require.NoError(t, env.app.UpdateAppointmentStatus(ctx, "owner", appt.ID, "in-progress"))
	require.NoError(t, env.app.UpdateAppointmentStatus(ctx, "owner", appt.ID, "completed"))
	// permissive policy re-opens finished appointments
	require.NoError(t, env.app.UpdateAppointmentStatus(ctx, "owner", appt.ID, "scheduled"))

	got, _, _ := env.store.GetAppointment(appt.ID)
	assert.Equal(t, domain.StatusScheduled, got.Status)
}

func TestTerminalPolicyRefusesReopen(t *testing.T) {
	env := newTestEnv(t, withPolicy(domain.TerminalGuardPolicy{}))
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()

	require.NoError(t, env.app.CancelAppointment(ctx, "owner", appt.ID))
	err := env.app.UpdateAppointmentStatus(ctx, "owner", appt.ID, "scheduled")
	assert.ErrorIs(t, err, ErrConflict)

	got, _, _ := env.store.GetAppointment(appt.ID)
	assert.Equal(t, domain.StatusCancelled, got.Status)
}

func TestAppointmentOverview(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	upcoming := env.book(t, "user-1", "Full Service")
	cancelled := env.book(t, "user-1", "Premium Car Wash")
	done := env.book(t, "user-1", "Brake Service")
	require.NoError(t, env.app.CancelAppointment(ctx, "user-1", cancelled.ID))
	require.NoError(t, env.app.UpdateAppointmentStatus(ctx, "user-1", done.ID, "completed"))

	ov, err := env.app.AppointmentOverview(ctx, "user-1", testNow)
	require.NoError(t, err)
	assert.Equal(t, 3, ov.TotalCount)
	assert.Equal(t, 1, ov.CompletedCount)
	require.Len(t, ov.Upcoming, 1)
	assert.Equal(t, upcoming.ID, ov.Upcoming[0].ID)
	assert.Len(t, ov.Past, 2)

	// once the date passes, a scheduled appointment counts as past
	later, err := env.app.AppointmentOverview(ctx, "user-1", testNow.Add(72*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, later.Upcoming)
	assert.Len(t, later.Past, 3)
}
