package api

import (
	"net/http"

	"github.com/hackgods/medivault/internal/consultation"
)

// consultationHistoryHandler expects provider_id and access_request_id as
// query parameters. Both must name an approved grant for the patient.
func consultationHistoryHandler(acc AccessService, svc ConsultationService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, ok := pathID(w, r, "patientID", "patient_id")
		if !ok {
			return
		}
		q := r.URL.Query()
		providerID, ok := parseID(w, q.Get("provider_id"), "provider_id")
		if !ok {
			return
		}
		requestID, ok := parseID(w, q.Get("access_request_id"), "access_request_id")
		if !ok {
			return
		}

		if !acc.CheckAccess(r.Context(), providerID, patientID, requestID) {
			writeAccessDenied(w)
			return
		}

		items, err := svc.History(r.Context(), providerID, patientID)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		resp := make([]ConsultationResponse, 0, len(items))
		for i := range items {
			resp = append(resp, toConsultationResponse(&items[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func recordConsultationHandler(acc AccessService, svc ConsultationService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RecordConsultationRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		requestID, ok := parseID(w, req.AccessRequestID, "access_request_id")
		if !ok {
			return
		}
		providerID, ok := parseID(w, req.ProviderID, "provider_id")
		if !ok {
			return
		}
		patientID, ok := parseID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}
		facilityID, ok := parseID(w, req.FacilityID, "facility_id")
		if !ok {
			return
		}

		if !acc.CheckAccess(r.Context(), providerID, patientID, requestID) {
			writeAccessDenied(w)
			return
		}

		c, err := svc.Record(r.Context(), consultation.RecordInput{
			ProviderID: providerID,
			PatientID:  patientID,
			FacilityID: facilityID,
			Vitals:     req.Vitals,
			Diagnosis:  req.Diagnosis,
			Medicines:  req.Medicines,
		})
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, toConsultationResponse(c))
	}
}
