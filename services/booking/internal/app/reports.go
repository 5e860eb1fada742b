package app

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"servicebay/internal/util"
	"servicebay/pkg/billing"
	"servicebay/pkg/domain"
	"servicebay/pkg/queue"
	"servicebay/pkg/store"
)

const (
	nextServiceInterval = 90 * 24 * time.Hour

	aiRecommendations = "See AI-generated report for detailed recommendations"
	aiMechanicNotes   = "Report generated using AI assistance"
	nextServiceNotice = "Your vehicle is due for its next service"

	reportJoinConcurrency = 8
)

// ReportInput is a manually written service report. Totals are always
// recomputed from the parts and labor.
type ReportInput struct {
	AppointmentID     string        `json:"appointmentId"`
	ServicesPerformed []string      `json:"servicesPerformed"`
	PartsReplaced     []domain.Part `json:"partsReplaced"`
	LaborCost         float64       `json:"laborCost"`
	NextServiceDue    *time.Time    `json:"nextServiceDue"`
	Recommendations   string        `json:"recommendations"`
	MechanicNotes     string        `json:"mechanicNotes"`
}

func (in ReportInput) validate() error {
	if in.LaborCost < 0 {
		return invalidInput("labor cost must not be negative")
	}
	for i, p := range in.PartsReplaced {
		if strings.TrimSpace(p.Name) == "" {
			return invalidInput("part %d: name required", i)
		}
		if p.Cost < 0 {
			return invalidInput("part %q: cost must not be negative", p.Name)
		}
		if p.Quantity < 1 {
			return invalidInput("part %q: quantity must be at least 1", p.Name)
		}
	}
	return nil
}

// CreateServiceReport records a manual report, completes the appointment and
// schedules the next-service reminder when a due date is given. Staff
// subjects may report on any appointment.
func (a *App) CreateServiceReport(ctx context.Context, callerID string, in ReportInput) (string, error) {
	if callerID == "" {
		return "", ErrUnauthenticated
	}
	if err := in.validate(); err != nil {
		return "", err
	}
	appt, err := a.ownedAppointment(callerID, in.AppointmentID, true)
	if err != nil {
		return "", err
	}
	now := a.now().UTC()
	report := domain.ServiceReport{
		ID:                util.NewEntityID(),
		AppointmentID:     appt.ID,
		UserID:            appt.UserID,
		ServiceDate:       now,
		ServicesPerformed: lo.Compact(lo.Map(in.ServicesPerformed, func(s string, _ int) string { return strings.TrimSpace(s) })),
		PartsReplaced:     slices.Clone(in.PartsReplaced),
		LaborCost:         in.LaborCost,
		TotalCost:         billing.TotalCost(in.LaborCost, in.PartsReplaced),
		Recommendations:   strings.TrimSpace(in.Recommendations),
		MechanicNotes:     strings.TrimSpace(in.MechanicNotes),
		CreatedAt:         now,
	}
	if report.ServicesPerformed == nil {
		report.ServicesPerformed = []string{}
	}
	if report.PartsReplaced == nil {
		report.PartsReplaced = []domain.Part{}
	}
	var reminder *domain.Reminder
	if in.NextServiceDue != nil {
		due := in.NextServiceDue.UTC()
		report.NextServiceDue = &due
		reminder = a.nextServiceReminder(appt, due, now)
	}
	if err := a.store.CompleteWithReport(report, reminder); err != nil {
		return "", mapStoreErr(err)
	}
	util.LoggerFromContext(ctx).Info("service report created",
		"report_id", report.ID,
		"appointment_id", appt.ID,
		"total_cost", report.TotalCost,
	)
	return report.ID, nil
}

// GenerateAIServiceReport writes the narrative report through the generation
// provider and attaches the fixed billing breakdown for the service type. It
// is idempotent: a report that already carries generated text is returned
// without calling the provider.
func (a *App) GenerateAIServiceReport(ctx context.Context, callerID, appointmentID string) (string, error) {
	if callerID == "" {
		return "", ErrUnauthenticated
	}
	appt, err := a.ownedAppointment(callerID, appointmentID, false)
	if err != nil {
		return "", err
	}
	existing, hasReport, err := a.store.GetReportByAppointment(appt.ID)
	if err != nil {
		return "", fmt.Errorf("load report: %w", err)
	}
	if hasReport && existing.HasAIContent() {
		return existing.ID, nil
	}
	if a.generator == nil {
		return "", fmt.Errorf("generation provider: %w", ErrConfiguration)
	}

	serviceName := ""
	if svc, ok, err := a.store.GetService(appt.ServiceID); err != nil {
		return "", fmt.Errorf("load service: %w", err)
	} else if ok {
		serviceName = svc.Name
	}

	logger := util.LoggerFromContext(ctx)
	genCtx, cancel := context.WithTimeout(ctx, a.generationTimeout)
	defer cancel()
	start := time.Now()
	text, err := a.generator.GenerateText(genCtx, reportSystemPrompt, buildReportPrompt(appt, serviceName))
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty response")
	}
	if err != nil {
		logger.Warn("report generation failed", "appointment_id", appt.ID, "err", err)
		return "", newProviderError(err)
	}
	logger.Info("report generated", "appointment_id", appt.ID, "duration_ms", time.Since(start).Milliseconds())

	now := a.now().UTC()
	if hasReport {
		return a.attachGenerated(existing.ID, text, now)
	}

	breakdown := billing.Classify(serviceName)
	due := appt.ScheduledDate.Add(nextServiceInterval)
	report := domain.ServiceReport{
		ID:                util.NewEntityID(),
		AppointmentID:     appt.ID,
		UserID:            appt.UserID,
		ServiceDate:       now,
		ServicesPerformed: breakdown.ServicesPerformed,
		PartsReplaced:     breakdown.PartsReplaced,
		LaborCost:         breakdown.LaborCost,
		TotalCost:         billing.TotalCost(breakdown.LaborCost, breakdown.PartsReplaced),
		NextServiceDue:    &due,
		Recommendations:   aiRecommendations,
		MechanicNotes:     aiMechanicNotes,
		AIGeneratedReport: text,
		GeneratedAt:       &now,
		CreatedAt:         now,
	}
	err = a.store.CompleteWithReport(report, a.nextServiceReminder(appt, due, now))
	if errors.Is(err, store.ErrReportExists) {
		// another request inserted first; keep its record
		winner, ok, gerr := a.store.GetReportByAppointment(appt.ID)
		if gerr != nil {
			return "", fmt.Errorf("load report: %w", gerr)
		}
		if !ok {
			return "", fmt.Errorf("report for appointment %s vanished after conflict", appt.ID)
		}
		if winner.HasAIContent() {
			return winner.ID, nil
		}
		return a.attachGenerated(winner.ID, text, now)
	}
	if err != nil {
		return "", mapStoreErr(err)
	}
	logger.Info("ai service report created", "report_id", report.ID, "appointment_id", appt.ID)
	return report.ID, nil
}

func (a *App) attachGenerated(reportID, text string, at time.Time) (string, error) {
	if err := a.store.AttachAIReport(reportID, text, at); err != nil {
		return "", mapStoreErr(err)
	}
	return reportID, nil
}

func (a *App) nextServiceReminder(appt domain.Appointment, due, now time.Time) *domain.Reminder {
	return &domain.Reminder{
		ID:            util.NewEntityID(),
		UserID:        appt.UserID,
		AppointmentID: appt.ID,
		Type:          domain.ReminderUpcomingService,
		Message:       nextServiceNotice,
		ScheduledFor:  due,
		CreatedAt:     now,
	}
}

// GetReportByAppointment returns nil for anonymous callers, missing reports
// and reports owned by another user.
func (a *App) GetReportByAppointment(_ context.Context, callerID, appointmentID string) (*domain.ServiceReport, error) {
	if callerID == "" {
		return nil, nil
	}
	report, ok, err := a.store.GetReportByAppointment(appointmentID)
	if err != nil {
		return nil, fmt.Errorf("load report: %w", err)
	}
	if !ok || report.UserID != callerID {
		return nil, nil
	}
	return &report, nil
}

// ListUserReports returns the caller's reports, newest first, each joined
// with its appointment and service.
func (a *App) ListUserReports(ctx context.Context, userID string) ([]domain.ReportDetail, error) {
	if userID == "" {
		return []domain.ReportDetail{}, nil
	}
	reports, err := a.store.ListReportsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	out := make([]domain.ReportDetail, len(reports))
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(reportJoinConcurrency)
	for i, report := range reports {
		g.Go(func() error {
			detail := domain.ReportDetail{ServiceReport: report}
			appt, ok, err := a.store.GetAppointment(report.AppointmentID)
			if err != nil {
				return fmt.Errorf("load appointment %s: %w", report.AppointmentID, err)
			}
			if ok {
				detail.Appointment = &appt
				svc, ok, err := a.store.GetService(appt.ServiceID)
				if err != nil {
					return fmt.Errorf("load service %s: %w", appt.ServiceID, err)
				}
				if ok {
					detail.Service = &svc
				}
			}
			out[i] = detail
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// EnqueueAIServiceReport checks ownership now and leaves generation to a
// worker.
func (a *App) EnqueueAIServiceReport(ctx context.Context, callerID, appointmentID string) (queue.Job, error) {
	if callerID == "" {
		return queue.Job{}, ErrUnauthenticated
	}
	if a.queue == nil {
		return queue.Job{}, fmt.Errorf("report queue: %w", ErrConfiguration)
	}
	appt, err := a.ownedAppointment(callerID, appointmentID, false)
	if err != nil {
		return queue.Job{}, err
	}
	job, err := a.queue.Enqueue(ctx, callerID, appt.ID)
	if err != nil {
		return queue.Job{}, fmt.Errorf("enqueue report job: %w", err)
	}
	util.LoggerFromContext(ctx).Info("report job queued", "job_id", job.ID, "appointment_id", appt.ID)
	return job, nil
}

// GetJob returns a queued report job to its owner.
func (a *App) GetJob(ctx context.Context, callerID, jobID string) (queue.Job, error) {
	if callerID == "" {
		return queue.Job{}, ErrUnauthenticated
	}
	if a.queue == nil {
		return queue.Job{}, fmt.Errorf("report queue: %w", ErrConfiguration)
	}
	job, ok, err := a.queue.GetJob(ctx, jobID)
	if err != nil {
		return queue.Job{}, fmt.Errorf("load job: %w", err)
	}
	if !ok || job.UserID != callerID {
		return queue.Job{}, fmt.Errorf("job %s: %w", jobID, ErrNotFound)
	}
	return job, nil
}

// ProcessReportJob is the queue handler for async generation. Retryable
// provider failures are returned as is so the queue retries them; anything
// that cannot succeed on a second attempt fails the job immediately.
func (a *App) ProcessReportJob(ctx context.Context, job queue.Job) (string, error) {
	reportID, err := a.GenerateAIServiceReport(ctx, job.UserID, job.AppointmentID)
	if err == nil {
		return reportID, nil
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		if pe.Retryable {
			return "", err
		}
		return "", queue.Permanent(err)
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConfiguration) || errors.Is(err, ErrUnauthenticated) {
		return "", queue.Permanent(err)
	}
	return "", err
}
