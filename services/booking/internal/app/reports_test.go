package app

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"servicebay/pkg/ai"
	"servicebay/pkg/domain"
	"servicebay/pkg/queue"
	"servicebay/pkg/storage"
)

func TestCreateServiceReportComputesTotals(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	due := testNow.Add(180 * 24 * time.Hour)

	id, err := env.app.CreateServiceReport(context.Background(), "owner", ReportInput{
		AppointmentID:     appt.ID,
		ServicesPerformed: []string{"Oil Change", " ", "Brake Check"},
		PartsReplaced: []domain.Part{
			{Name: "Oil Filter", Cost: 12.10, Quantity: 3},
			{Name: "Wiper Blade", Cost: 9.99, Quantity: 2},
		},
		LaborCost:      50.005,
		NextServiceDue: &due,
		MechanicNotes:  "All good",
	})
	require.NoError(t, err)

	report, ok, err := env.store.GetReport(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "owner", report.UserID)
	assert.Equal(t, []string{"Oil Change", "Brake Check"}, report.ServicesPerformed)
	assert.InDelta(t, 106.29, report.TotalCost, 0.0001)
	assert.True(t, report.ServiceDate.Equal(testNow))
	assert.False(t, report.HasAIContent())

	got, _, _ := env.store.GetAppointment(appt.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	reminders, _ := env.app.ListUserReminders(context.Background(), "owner")
	require.Len(t, reminders, 2)
	assert.Equal(t, domain.ReminderUpcomingService, reminders[0].Type)
	assert.Equal(t, "Your vehicle is due for its next service", reminders[0].Message)
	assert.True(t, reminders[0].ScheduledFor.Equal(due))
}

func TestCreateServiceReportCopiesCallerParts(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	parts := []domain.Part{{Name: "Oil Filter", Cost: 12, Quantity: 1}}

	id, err := env.app.CreateServiceReport(context.Background(), "owner", ReportInput{
		AppointmentID: appt.ID,
		PartsReplaced: parts,
		LaborCost:     10,
	})
	require.NoError(t, err)
	parts[0].Name = "changed"
	parts[0].Cost = 999

	report, _, _ := env.store.GetReport(id)
	require.Len(t, report.PartsReplaced, 1)
	assert.Equal(t, "Oil Filter", report.PartsReplaced[0].Name)
	assert.InDelta(t, 22.0, report.TotalCost, 0.0001)
}

func TestCreateServiceReportWithoutDueDateAddsNoReminder(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	_, err := env.app.CreateServiceReport(context.Background(), "owner", ReportInput{AppointmentID: appt.ID, LaborCost: 10})
	require.NoError(t, err)
	reminders, _ := env.app.ListUserReminders(context.Background(), "owner")
	assert.Len(t, reminders, 1)
}

func TestCreateServiceReportErrors(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()

	_, err := env.app.CreateServiceReport(ctx, "", ReportInput{AppointmentID: appt.ID})
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = env.app.CreateServiceReport(ctx, "intruder", ReportInput{AppointmentID: appt.ID})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.app.CreateServiceReport(ctx, "owner", ReportInput{AppointmentID: "missing"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.app.CreateServiceReport(ctx, "owner", ReportInput{AppointmentID: appt.ID, LaborCost: -1})
	assert.ErrorIs(t, err, ErrInvalidInput)
	_, err = env.app.CreateServiceReport(ctx, "owner", ReportInput{
		AppointmentID: appt.ID,
		PartsReplaced: []domain.Part{{Name: "Bolt", Cost: 1, Quantity: 0}},
	})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = env.app.CreateServiceReport(ctx, "owner", ReportInput{AppointmentID: appt.ID})
	require.NoError(t, err)
	_, err = env.app.CreateServiceReport(ctx, "owner", ReportInput{AppointmentID: appt.ID})
	assert.ErrorIs(t, err, ErrConflict)
}

func TestCreateServiceReportStaffBypass(t *testing.T) {
	env := newTestEnv(t, withStaff("mechanic"))
	appt := env.book(t, "owner", "Brake Service")

	id, err := env.app.CreateServiceReport(context.Background(), "mechanic", ReportInput{AppointmentID: appt.ID, LaborCost: 80})
	require.NoError(t, err)
	report, _, _ := env.store.GetReport(id)
	assert.Equal(t, "owner", report.UserID)
}

func TestGenerateAIServiceReport(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Regular Oil Change")

	id, err := env.app.GenerateAIServiceReport(context.Background(), "owner", appt.ID)
	require.NoError(t, err)

	report, ok, err := env.store.GetReport(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Oil Change", "Oil Filter Replacement", "Fluid Level Check", "Multi-point Inspection"}, report.ServicesPerformed)
	assert.Equal(t, 45.0, report.LaborCost)
	assert.Equal(t, 92.0, report.TotalCost)
	require.NotNil(t, report.NextServiceDue)
	assert.True(t, report.NextServiceDue.Equal(appt.ScheduledDate.Add(90*24*time.Hour)))
	assert.Equal(t, "See AI-generated report for detailed recommendations", report.Recommendations)
	assert.Equal(t, "Report generated using AI assistance", report.MechanicNotes)
	assert.Equal(t, "Vehicle is in good condition.", report.AIGeneratedReport)
	require.NotNil(t, report.GeneratedAt)

	got, _, _ := env.store.GetAppointment(appt.ID)
	assert.Equal(t, domain.StatusCompleted, got.Status)

	prompt := env.generator.lastPrompt
	assert.Contains(t, prompt, "Service Type: Regular Oil Change")
	assert.Contains(t, prompt, "Vehicle Plate: "+appt.VehiclePlate)
	assert.Contains(t, prompt, "Service Date: Mar 12, 2026")
	assert.NotContains(t, prompt, "Pickup Address")
	assert.Contains(t, prompt, "Do NOT use tables")

	reminders, _ := env.app.ListUserReminders(context.Background(), "owner")
	require.Len(t, reminders, 2)
	assert.Equal(t, domain.ReminderUpcomingService, reminders[0].Type)
}

func TestGenerateAIServiceReportIsIdempotent(t *testing.T) {
	now := testNow
	env := newTestEnv(t, withClock(func() time.Time { return now }))
	appt := env.book(t, "owner", "Premium Car Wash")
	ctx := context.Background()

	first, err := env.app.GenerateAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)
	before, _, _ := env.store.GetReport(first)
	require.NotNil(t, before.GeneratedAt)

	now = testNow.Add(2 * time.Hour)
	env.generator.text = "A different narrative."
	second, err := env.app.GenerateAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, env.generator.Calls())

	after, _, _ := env.store.GetReport(second)
	require.NotNil(t, after.GeneratedAt)
	assert.True(t, after.GeneratedAt.Equal(testNow), "generatedAt moved to %s", after.GeneratedAt)
	assert.Equal(t, before.AIGeneratedReport, after.AIGeneratedReport)

	reports, _ := env.store.ListReportsByUser("owner")
	assert.Len(t, reports, 1)
}

func TestGenerateAIServiceReportAttachesToManualReport(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Brake Service")
	ctx := context.Background()
	manualID, err := env.app.CreateServiceReport(ctx, "owner", ReportInput{
		AppointmentID:     appt.ID,
		ServicesPerformed: []string{"Pad swap"},
		LaborCost:         99,
	})
	require.NoError(t, err)
	require.NoError(t, env.app.UpdateAppointmentStatus(ctx, "owner", appt.ID, "in-progress"))

	id, err := env.app.GenerateAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, manualID, id)

	report, _, _ := env.store.GetReport(id)
	assert.Equal(t, []string{"Pad swap"}, report.ServicesPerformed)
	assert.Equal(t, 99.0, report.LaborCost)
	assert.True(t, report.HasAIContent())
	require.NotNil(t, report.GeneratedAt)

	// attaching text does not touch the appointment
	got, _, _ := env.store.GetAppointment(appt.ID)
	assert.Equal(t, domain.StatusInProgress, got.Status)
}

func TestGenerateAIServiceReportFailuresPersistNothing(t *testing.T) {
	cases := []struct {
		name  string
		opts  []envOption
		setup func(*fakeGenerator)
		want  error
	}{
		{name: "no generator", opts: []envOption{withoutGenerator()}, want: ErrConfiguration},
		{name: "provider error", setup: func(g *fakeGenerator) {
			g.err = &ai.StatusError{Provider: "gemini", StatusCode: 400, Message: "bad request"}
		}, want: ErrProvider},
		{name: "empty text", setup: func(g *fakeGenerator) { g.text = "  " }, want: ErrProvider},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, tc.opts...)
			if tc.setup != nil {
				tc.setup(env.generator)
			}
			appt := env.book(t, "owner", "Full Service")

			_, err := env.app.GenerateAIServiceReport(context.Background(), "owner", appt.ID)
			assert.ErrorIs(t, err, tc.want)

			reports, _ := env.store.ListReportsByUser("owner")
			assert.Empty(t, reports)
			got, _, _ := env.store.GetAppointment(appt.ID)
			assert.Equal(t, domain.StatusScheduled, got.Status)
			reminders, _ := env.app.ListUserReminders(context.Background(), "owner")
			assert.Len(t, reminders, 1)
		})
	}
}

func TestGenerateAIServiceReportTimeoutIsRetryable(t *testing.T) {
	env := newTestEnv(t)
	env.app.generationTimeout = 20 * time.Millisecond
	env.generator.block = true
	appt := env.book(t, "owner", "Full Service")

	_, err := env.app.GenerateAIServiceReport(context.Background(), "owner", appt.ID)
	require.ErrorIs(t, err, ErrProvider)
	var pe *ProviderError
	require.True(t, errors.As(err, &pe))
	assert.True(t, pe.Timeout)
	assert.True(t, pe.Retryable)
}

func TestGenerateAIServiceReportOwnership(t *testing.T) {
	env := newTestEnv(t, withStaff("mechanic"))
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()

	_, err := env.app.GenerateAIServiceReport(ctx, "", appt.ID)
	assert.ErrorIs(t, err, ErrUnauthenticated)
	_, err = env.app.GenerateAIServiceReport(ctx, "intruder", appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	// staff bypass only applies to manual reports
	_, err = env.app.GenerateAIServiceReport(ctx, "mechanic", appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Zero(t, env.generator.Calls())
}

func TestGenerateAIServiceReportConcurrentCallsShareOneReport(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")

	const callers = 8
	ids := make([]string, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, err := env.app.GenerateAIServiceReport(context.Background(), "owner", appt.ID)
			assert.NoError(t, err)
			ids[i] = id
		}()
	}
	wg.Wait()

	reports, _ := env.store.ListReportsByUser("owner")
	require.Len(t, reports, 1)
	for _, id := range ids {
		assert.Equal(t, reports[0].ID, id)
	}
}

func TestGetReportByAppointmentHidesForeignReports(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()
	id, err := env.app.GenerateAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)

	report, err := env.app.GetReportByAppointment(ctx, "owner", appt.ID)
	require.NoError(t, err)
	require.NotNil(t, report)
	assert.Equal(t, id, report.ID)

	for _, caller := range []string{"", "intruder"} {
		report, err := env.app.GetReportByAppointment(ctx, caller, appt.ID)
		require.NoError(t, err)
		assert.Nil(t, report)
	}
	none, err := env.app.GetReportByAppointment(ctx, "owner", "missing")
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestListUserReportsJoinsAppointmentAndService(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	older := env.book(t, "owner", "Premium Car Wash")
	newer := env.book(t, "owner", "Brake Service")
	_, err := env.app.GenerateAIServiceReport(ctx, "owner", older.ID)
	require.NoError(t, err)
	_, err = env.app.GenerateAIServiceReport(ctx, "owner", newer.ID)
	require.NoError(t, err)

	list, err := env.app.ListUserReports(ctx, "owner")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer.ID, list[0].AppointmentID)
	require.NotNil(t, list[0].Appointment)
	require.NotNil(t, list[0].Service)
	assert.Equal(t, "Brake Service", list[0].Service.Name)
	assert.Equal(t, 220.0, list[0].TotalCost)
	assert.Equal(t, "Premium Car Wash", list[1].Service.Name)
	assert.Equal(t, 35.0, list[1].TotalCost)

	anon, err := env.app.ListUserReports(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, anon)
}

func TestExportReport(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	appt := env.book(t, "owner", "Regular Oil Change")
	id, err := env.app.GenerateAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)

	out, err := env.app.ExportReport(ctx, "owner", id)
	require.NoError(t, err)
	assert.Equal(t, "reports/owner/"+id+".md", out.Key)
	assert.True(t, strings.HasPrefix(out.URL, "memory:///reports/owner/"))

	obj, ok := env.objects.Get(out.Key)
	require.True(t, ok)
	body := string(obj.Data)
	assert.Equal(t, "text/markdown; charset=utf-8", obj.ContentType)
	assert.Contains(t, body, "# Regular Oil Change Report")
	assert.Contains(t, body, "- Engine Oil (5W-30) x1 at $35.00")
	assert.Contains(t, body, "- Total: $92.00")
	assert.Contains(t, body, "Vehicle is in good condition.")

	_, err = env.app.ExportReport(ctx, "intruder", id)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.app.ExportReport(ctx, "", id)
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

type presignFailingStore struct {
	*storage.MemoryStore
}

func (presignFailingStore) PresignGet(context.Context, string, time.Duration) (string, error) {
	return "", errors.New("signing key unavailable")
}

func TestExportReportRemovesObjectWhenPresignFails(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.app.objects = presignFailingStore{MemoryStore: env.objects}
	appt := env.book(t, "owner", "Regular Oil Change")
	id, err := env.app.GenerateAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)

	_, err = env.app.ExportReport(ctx, "owner", id)
	require.Error(t, err)
	_, ok := env.objects.Get(reportObjectKey("owner", id))
	assert.False(t, ok)
}

func TestExportReportWithoutObjectStorage(t *testing.T) {
	env := newTestEnv(t)
	env.app.objects = nil
	_, err := env.app.ExportReport(context.Background(), "owner", "any")
	assert.ErrorIs(t, err, ErrConfiguration)
}

func newMiniredisQueue(t *testing.T) *queue.RedisJobQueue {
	t.Helper()
	srv := miniredis.RunT(t)
	q, err := queue.NewRedisJobQueue(queue.RedisQueueConfig{Addr: srv.Addr(), Stream: "test:reports"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func TestEnqueueAIServiceReport(t *testing.T) {
	q := newMiniredisQueue(t)
	env := newTestEnv(t, withQueue(q))
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()

	job, err := env.app.EnqueueAIServiceReport(ctx, "owner", appt.ID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusQueued, job.Status)
	assert.Equal(t, appt.ID, job.AppointmentID)

	got, err := env.app.GetJob(ctx, "owner", job.ID)
	require.NoError(t, err)
	assert.Equal(t, job.ID, got.ID)
	_, err = env.app.GetJob(ctx, "intruder", job.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.app.EnqueueAIServiceReport(ctx, "intruder", appt.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnqueueWithoutQueue(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	_, err := env.app.EnqueueAIServiceReport(context.Background(), "owner", appt.ID)
	assert.ErrorIs(t, err, ErrConfiguration)
}

func TestProcessReportJobClassifiesFailures(t *testing.T) {
	env := newTestEnv(t)
	appt := env.book(t, "owner", "Full Service")
	ctx := context.Background()

	_, err := env.app.ProcessReportJob(ctx, queue.Job{UserID: "intruder", AppointmentID: appt.ID})
	assert.True(t, queue.IsPermanent(err))

	env.generator.err = &ai.StatusError{Provider: "gemini", StatusCode: 503, Message: "overloaded"}
	_, err = env.app.ProcessReportJob(ctx, queue.Job{UserID: "owner", AppointmentID: appt.ID})
	require.Error(t, err)
	assert.False(t, queue.IsPermanent(err))

	env.generator.err = &ai.StatusError{Provider: "gemini", StatusCode: 403, Message: "forbidden"}
	_, err = env.app.ProcessReportJob(ctx, queue.Job{UserID: "owner", AppointmentID: appt.ID})
	assert.True(t, queue.IsPermanent(err))

	env.generator.err = nil
	id, err := env.app.ProcessReportJob(ctx, queue.Job{UserID: "owner", AppointmentID: appt.ID})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
