package server

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"servicebay/services/booking/internal/app"
)

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	category := strings.TrimSpace(r.URL.Query().Get("category"))
	if category == "" {
		services, err := s.app.ListServices()
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, listResponse(services))
		return
	}
	services, err := s.app.ListServicesByCategory(category)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(services))
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	svc, err := s.app.GetService(chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

func (s *Server) handleSeedCatalog(w http.ResponseWriter, r *http.Request, userID string) {
	n, err := s.app.SeedCatalogAs(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"inserted": n})
}

func (s *Server) handleCreateAppointment(w http.ResponseWriter, r *http.Request, userID string) {
	var in app.AppointmentInput
	if !decodeJSON(w, r, &in) {
		return
	}
	id, err := s.app.CreateAppointment(r.Context(), userID, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleListAppointments(w http.ResponseWriter, r *http.Request, userID string) {
	appts, err := s.app.ListUserAppointments(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(appts))
}

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request, userID string) {
	ov, err := s.app.AppointmentOverview(r.Context(), userID, s.now())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request, userID string) {
	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	id := chi.URLParam(r, "id")
	if err := s.app.UpdateAppointmentStatus(r.Context(), userID, id, req.Status); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": strings.ToLower(strings.TrimSpace(req.Status))})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, userID string) {
	id := chi.URLParam(r, "id")
	if err := s.app.CancelAppointment(r.Context(), userID, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "cancelled"})
}

// handleGetReport answers null rather than 404 so clients can poll before a
// report exists.
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, userID string) {
	report, err := s.app.GetReportByAppointment(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleCreateReport(w http.ResponseWriter, r *http.Request, userID string) {
	var in app.ReportInput
	if !decodeJSON(w, r, &in) {
		return
	}
	in.AppointmentID = chi.URLParam(r, "id")
	id, err := s.app.CreateServiceReport(r.Context(), userID, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleGenerateReport(w http.ResponseWriter, r *http.Request, userID string) {
	if !s.allowGenerate(w, r, userID) {
		return
	}
	appointmentID := chi.URLParam(r, "id")
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		job, err := s.app.EnqueueAIServiceReport(r.Context(), userID, appointmentID)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, job)
		return
	}
	id, err := s.app.GenerateAIServiceReport(r.Context(), userID, appointmentID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id})
}

func (s *Server) handleListReports(w http.ResponseWriter, r *http.Request, userID string) {
	reports, err := s.app.ListUserReports(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(reports))
}

func (s *Server) handleExportReport(w http.ResponseWriter, r *http.Request, userID string) {
	out, err := s.app.ExportReport(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request, userID string) {
	job, err := s.app.GetJob(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

func (s *Server) handleListReminders(w http.ResponseWriter, r *http.Request, userID string) {
	reminders, err := s.app.ListUserReminders(r.Context(), userID)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, listResponse(reminders))
}
