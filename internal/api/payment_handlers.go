package api

import (
	"net/http"
)

func initiatePaymentHandler(svc PaymentService, keyID string, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "appointment_id")
		if !ok {
			return
		}
		var req InitiatePaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		patientID, ok := parseID(w, req.PatientID, "patient_id")
		if !ok {
			return
		}

		intent, err := svc.InitiatePaymentForPatient(r.Context(), id, patientID)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		status := http.StatusCreated
		if intent.Reused {
			status = http.StatusOK
		}
		writeJSON(w, status, toIntentResponse(intent, keyID))
	}
}

func verifyPaymentHandler(svc PaymentService, errs errorWriter) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id", "appointment_id")
		if !ok {
			return
		}
		var req VerifyPaymentRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.PaymentID == "" || req.Signature == "" {
			writeError(w, http.StatusBadRequest, "invalid_request", "payment_id and signature are required")
			return
		}

		approved, err := svc.VerifyPayment(r.Context(), id, req.PaymentID, req.Signature)
		if err != nil {
			errs.write(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, VerifyPaymentResponse{Approved: approved})
	}
}
