package api

import (
	"net/http"

	"github.com/hackgods/medivault/internal/appointment"
)

func createAppointmentHandler(svc AppointmentService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := parseID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		providerID, ok := parseID(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}
		facilityID, ok := parseID(w, req.FacilityID, "facility_id")
		if !ok {
			return
		}

		appt, err := svc.Create(r.Context(), appointment.CreateInput{
			PatientID:   patientID,
			ProviderID:  providerID,
			FacilityID:  facilityID,
			ScheduledAt: req.ScheduledAt,
			Notes:       req.Notes,
		})
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toAppointmentResponse(appt))
	}
}

func getAppointmentHandler(svc AppointmentService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "appointment_id")
		if !ok {
			return
		}
		appt, err := svc.Get(r.Context(), id)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func setAppointmentStatusHandler(svc AppointmentService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "appointment_id")
		if !ok {
			return
		}
		var req SetStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		providerID, ok := parseID(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}

		appt, err := svc.SetStatus(r.Context(), providerID, id, appointment.AppointmentStatus(req.Status))
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}

func requestPaymentHandler(svc AppointmentService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "appointment_id")
		if !ok {
			return
		}
		var req PaymentRequestRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		providerID, ok := parseID(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}

		appt, err := svc.RequestPayment(r.Context(), providerID, id, req.Amount)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toAppointmentResponse(appt))
	}
}
