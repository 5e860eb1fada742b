package app

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"servicebay/internal/util"
	"servicebay/pkg/billing"
	"servicebay/pkg/domain"
)

// ExportedReport points at a rendered report in object storage.
type ExportedReport struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

func reportObjectKey(userID, reportID string) string {
	return fmt.Sprintf("reports/%s/%s.md", userID, reportID)
}

// ExportReport renders an owned report as Markdown, uploads it and returns a
// presigned download URL.
func (a *App) ExportReport(ctx context.Context, callerID, reportID string) (ExportedReport, error) {
	if callerID == "" {
		return ExportedReport{}, ErrUnauthenticated
	}
	if a.objects == nil {
		return ExportedReport{}, fmt.Errorf("object storage: %w", ErrConfiguration)
	}
	report, ok, err := a.store.GetReport(reportID)
	if err != nil {
		return ExportedReport{}, fmt.Errorf("load report: %w", err)
	}
	if !ok || report.UserID != callerID {
		return ExportedReport{}, fmt.Errorf("report %s: %w", reportID, ErrNotFound)
	}
	detail := domain.ReportDetail{ServiceReport: report}
	if appt, ok, err := a.store.GetAppointment(report.AppointmentID); err != nil {
		return ExportedReport{}, fmt.Errorf("load appointment: %w", err)
	} else if ok {
		detail.Appointment = &appt
		if svc, ok, err := a.store.GetService(appt.ServiceID); err != nil {
			return ExportedReport{}, fmt.Errorf("load service: %w", err)
		} else if ok {
			detail.Service = &svc
		}
	}

	body := []byte(renderReportMarkdown(detail))
	key := reportObjectKey(report.UserID, report.ID)
	if err := a.objects.Put(ctx, key, bytes.NewReader(body), int64(len(body)), "text/markdown; charset=utf-8"); err != nil {
		return ExportedReport{}, fmt.Errorf("upload report: %w", err)
	}
	url, err := a.objects.PresignGet(ctx, key, a.exportExpiry)
	if err != nil {
		// nobody can fetch an object without a link, so drop it
		if delErr := a.objects.Delete(ctx, key); delErr != nil {
			util.LoggerFromContext(ctx).Warn("remove unlinked export failed", "key", key, "err", delErr)
		}
		return ExportedReport{}, fmt.Errorf("presign report: %w", err)
	}
	util.LoggerFromContext(ctx).Info("report exported", "report_id", report.ID, "key", key, "bytes", len(body))
	return ExportedReport{Key: key, URL: url}, nil
}

func money(v float64) string {
	return "$" + decimal.NewFromFloat(v).StringFixed(2)
}

func renderReportMarkdown(d domain.ReportDetail) string {
	var b strings.Builder
	title := "Service Report"
	if d.Service != nil {
		title = d.Service.Name + " Report"
	}
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "- Report ID: %s\n", d.ID)
	fmt.Fprintf(&b, "- Service date: %s\n", d.ServiceDate.Format("Jan 2, 2006"))
	if d.Appointment != nil {
		fmt.Fprintf(&b, "- Vehicle: %s %s (%s)\n", d.Appointment.VehicleType, d.Appointment.VehicleModel, d.Appointment.VehiclePlate)
		fmt.Fprintf(&b, "- Appointment: %s\n", d.Appointment.ScheduledDate.Format("Jan 2, 2006 15:04 MST"))
	}
	if d.NextServiceDue != nil {
		fmt.Fprintf(&b, "- Next service due: %s\n", d.NextServiceDue.Format("Jan 2, 2006"))
	}

	b.WriteString("\n## Services Performed\n\n")
	if len(d.ServicesPerformed) == 0 {
		b.WriteString("None recorded.\n")
	}
	for _, s := range d.ServicesPerformed {
		fmt.Fprintf(&b, "- %s\n", s)
	}

	b.WriteString("\n## Parts Replaced\n\n")
	if len(d.PartsReplaced) == 0 {
		b.WriteString("None.\n")
	}
	for _, p := range d.PartsReplaced {
		fmt.Fprintf(&b, "- %s x%d at %s\n", p.Name, p.Quantity, money(p.Cost))
	}

	b.WriteString("\n## Costs\n\n")
	fmt.Fprintf(&b, "- Parts: %s\n", money(billing.PartsCost(d.PartsReplaced)))
	fmt.Fprintf(&b, "- Labor: %s\n", money(d.LaborCost))
	fmt.Fprintf(&b, "- Total: %s\n", money(d.TotalCost))

	if d.Recommendations != "" {
		fmt.Fprintf(&b, "\n## Recommendations\n\n%s\n", d.Recommendations)
	}
	if d.MechanicNotes != "" {
		fmt.Fprintf(&b, "\n## Mechanic Notes\n\n%s\n", d.MechanicNotes)
	}
	if d.HasAIContent() {
		fmt.Fprintf(&b, "\n## Detailed Report\n\n%s\n", strings.TrimSpace(d.AIGeneratedReport))
	}
	return b.String()
}
